package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soypat/wl12xx/mbox"
)

const stationConfig = `
[log]
level = "warn"

[[conn]]
role = 1
mode = "sta"
link = 1
rssi_threshold = -70
`

func TestDecodeText(t *testing.T) {
	rec := recordHex(func(r *mbox.Record) {
		r.EventsVector.Enable(mbox.KindBeaconLoss)
		r.EventsVector.Enable(mbox.KindRSSITrigger0)
		r.RSSISNRTriggerMetric[0] = -80
	})
	stdout, _, err := executeCLI(t, "decode", rec)
	require.NoError(t, err)
	assert.Contains(t, stdout, "RSSI_TRIGGER_0")
	assert.Contains(t, stdout, "BSS_LOSE")
	assert.Contains(t, stdout, "rssi=[-80")
}

func TestDecodeMasked(t *testing.T) {
	rec := recordHex(func(r *mbox.Record) {
		r.EventsVector.Enable(mbox.KindBeaconLoss)
		r.EventsMask.Enable(mbox.KindBeaconLoss)
	})
	stdout, _, err := executeCLI(t, "decode", "--json", rec)
	require.NoError(t, err)
	var out []decodedRecord
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out, 1)
	assert.Empty(t, out[0].Events)
}

func TestDecodeErrors(t *testing.T) {
	_, _, err := executeCLI(t, "decode", "zz")
	require.Error(t, err)

	_, _, err = executeCLI(t, "decode", "00ff")
	require.ErrorIs(t, err, mbox.ErrMalformedRecord)
}

func TestReplayRSSI(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "wlctl.toml", stationConfig)
	rssi := func(metric int8) string {
		return recordHex(func(r *mbox.Record) {
			r.EventsVector.Enable(mbox.KindRSSITrigger0)
			r.RSSISNRTriggerMetric[0] = metric
		})
	}
	trace := writeFile(t, dir, "trace.txt", fmt.Sprintf("# rssi walk\n0 %s\n\n100 %s\n200 %s\n", rssi(-80), rssi(-60), rssi(-50)))

	stdout, _, err := executeCLI(t, "--config", cfg, "replay", trace)
	require.NoError(t, err)
	notes := notificationLines(t, stdout)
	require.Len(t, notes, 2)
	assert.Equal(t, "rssi-low", notes[0]["kind"])
	assert.EqualValues(t, -80, notes[0]["rssi"])
	assert.Equal(t, "rssi-high", notes[1]["kind"])
}

func TestReplayBeaconLoss(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "wlctl.toml", stationConfig)
	loss := recordHex(func(r *mbox.Record) { r.EventsVector.Enable(mbox.KindBeaconLoss) })
	var trace strings.Builder
	for _, ms := range []int{0, 4000, 8000, 11000, 12000} {
		fmt.Fprintf(&trace, "%d %s\n", ms, loss)
	}
	path := writeFile(t, dir, "trace.txt", trace.String())

	stdout, _, err := executeCLI(t, "--config", cfg, "replay", path)
	require.NoError(t, err)
	notes := notificationLines(t, stdout)
	require.Len(t, notes, 2)
	assert.Equal(t, "beacon-loss", notes[0]["kind"])
	assert.Equal(t, "connection-loss", notes[1]["kind"])
}

func TestParseTrace(t *testing.T) {
	rec := recordHex(func(*mbox.Record) {})
	tests := []struct {
		name  string
		input string
	}{
		{"no record", "10\n"},
		{"bad offset", "x " + rec + "\n"},
		{"negative offset", "-1 " + rec + "\n"},
		{"bad hex", "0 zz\n"},
		{"short record", "0 00ff\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseTrace(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
	trace, err := parseTrace(strings.NewReader("# c\n5 " + rec + "\n"))
	require.NoError(t, err)
	require.Len(t, trace, 1)
	assert.EqualValues(t, 5_000_000, trace[0].at)
}

func TestTxsim(t *testing.T) {
	stdout, _, err := executeCLI(t, "txsim", "--links", "2", "--packets", "20", "--tid", "0,6", "--json")
	require.NoError(t, err)
	var res simResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, 40, res.Submitted)
	assert.Zero(t, res.Rejected)
	assert.Equal(t, res.Submitted, res.Sent)
}

func TestTxsimBusy(t *testing.T) {
	stdout, _, err := executeCLI(t, "txsim", "--links", "1", "--packets", "30", "--busy-every", "3", "--json")
	require.NoError(t, err)
	var res simResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	var requeued uint32
	for _, q := range res.Stats.Queues {
		requeued += q.Requeued
	}
	assert.NotZero(t, requeued)
	assert.NotZero(t, res.Sent)
	assert.LessOrEqual(t, res.Sent+res.Rejected, res.Submitted)
}

func TestTxsimTable(t *testing.T) {
	stdout, _, err := executeCLI(t, "txsim", "--packets", "4")
	require.NoError(t, err)
	assert.Contains(t, stdout, "submitted")
	assert.Contains(t, stdout, "LINK")
}

func TestTxsimBadPriority(t *testing.T) {
	_, _, err := executeCLI(t, "txsim", "--tid", "9")
	require.Error(t, err)
}

func TestConfigCmd(t *testing.T) {
	stdout, _, err := executeCLI(t, "--log-level", "debug", "config")
	require.NoError(t, err)
	assert.Contains(t, stdout, "[tx]")
	assert.Contains(t, stdout, "max_total")
	assert.Contains(t, stdout, "debug")
}

func TestBadLogLevel(t *testing.T) {
	_, _, err := executeCLI(t, "--log-level", "loud", "config")
	require.Error(t, err)
}

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home)

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func recordHex(modify func(*mbox.Record)) string {
	var r mbox.Record
	modify(&r)
	var buf [mbox.RecordLen]byte
	r.Put(buf[:])
	return hex.EncodeToString(buf[:])
}

func notificationLines(t *testing.T, out string) (notes []map[string]any) {
	t.Helper()
	s := bufio.NewScanner(strings.NewReader(out))
	for s.Scan() {
		var n map[string]any
		require.NoError(t, json.Unmarshal(s.Bytes(), &n), s.Text())
		notes = append(notes, n)
	}
	return notes
}
