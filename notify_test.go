package wl12xx

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNotificationJSON(t *testing.T) {
	n := Notification{Kind: NotifyLowAck, Role: 2, Link: 5, Addr: MAC{0x02, 0xaa, 0, 0, 0, 5}, Retries: 100}
	b, err := json.Marshal(n)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"kind":"low-ack"`, `"addr":"02:aa:00:00:00:05"`, `"retries":100`, `"link":5`} {
		if !bytes.Contains(b, []byte(want)) {
			t.Errorf("%s missing %s", b, want)
		}
	}
}

func TestNotifyKindString(t *testing.T) {
	for k := NotifyRSSILow; k <= NotifyRecalcRxStreaming; k++ {
		if s := k.String(); strings.HasPrefix(s, "notify(") {
			t.Errorf("kind %d has no name", k)
		}
	}
	if s := NotifyKind(200).String(); s != "notify(200)" {
		t.Errorf("got %q", s)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	ln := LogNotifier{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	ln.Notify(Notification{Kind: NotifyChannelSwitch, Role: 1, Success: true})
	out := buf.String()
	if !strings.Contains(out, "kind=channel-switch") || !strings.Contains(out, "success=true") {
		t.Fatalf("unexpected log %q", out)
	}
	LogNotifier{}.Notify(Notification{Kind: NotifyRSSILow})
}
