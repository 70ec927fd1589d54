package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/soypat/wl12xx"
	"github.com/soypat/wl12xx/mbox"
	"github.com/soypat/wl12xx/notify/mqttnotify"
	"github.com/soypat/wl12xx/txdata"
)

func newReplayCmd(a *app) *cobra.Command {
	var (
		broker string
		topic  string
	)
	cmd := &cobra.Command{
		Use:   "replay <trace file>",
		Short: "Replay a mailbox trace through the event dispatcher",
		Long: `Replay feeds every record of a trace file through the event dispatcher
and prints the resulting notifications as JSON lines.

Each trace line holds a millisecond offset followed by a hex encoded
mailbox record. Blank lines and lines starting with # are ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trace, err := readTrace(args[0])
			if err != nil {
				return err
			}
			if broker != "" {
				a.file.MQTT.Broker = broker
			}
			if topic != "" {
				a.file.MQTT.TopicPrefix = topic
			}
			notifiers := []wl12xx.Notifier{newJSONNotifier(cmd.OutOrStdout())}
			if a.file.MQTT.Broker != "" {
				pub, err := mqttnotify.Dial(cmd.Context(), mqttnotify.Config{
					Broker:      a.file.MQTT.Broker,
					TopicPrefix: a.file.MQTT.TopicPrefix,
					ClientID:    a.file.MQTT.ClientID,
					Logger:      a.logger,
				})
				if err != nil {
					return err
				}
				defer pub.Close()
				notifiers = append(notifiers, pub)
			}
			return runReplay(cmd.Context(), a, trace, multiNotifier(notifiers))
		},
	}
	cmd.Flags().StringVar(&broker, "mqtt", "", "publish notifications to the MQTT broker at host:port")
	cmd.Flags().StringVar(&topic, "topic", "", "MQTT topic prefix")
	return cmd
}

// traceEntry is one mailbox record of a trace.
type traceEntry struct {
	at     time.Duration
	record []byte
}

func readTrace(path string) ([]traceEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseTrace(f)
}

func parseTrace(r io.Reader) (trace []traceEntry, err error) {
	s := bufio.NewScanner(r)
	line := 0
	for s.Scan() {
		line++
		text := strings.TrimSpace(s.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		offset, rest, ok := strings.Cut(text, " ")
		if !ok {
			return nil, fmt.Errorf("trace line %d: want <ms> <hex>", line)
		}
		ms, err := strconv.ParseInt(offset, 10, 64)
		if err != nil || ms < 0 {
			return nil, fmt.Errorf("trace line %d: bad offset %q", line, offset)
		}
		b, err := parseHex(rest)
		if err != nil {
			return nil, fmt.Errorf("trace line %d: %w", line, err)
		}
		if len(b) < mbox.RecordLen {
			return nil, fmt.Errorf("trace line %d: record is %d bytes, want %d", line, len(b), mbox.RecordLen)
		}
		trace = append(trace, traceEntry{at: time.Duration(ms) * time.Millisecond, record: b})
	}
	return trace, s.Err()
}

func runReplay(ctx context.Context, a *app, trace []traceEntry, notifier wl12xx.Notifier) error {
	cfg, conns, err := a.file.Core()
	if err != nil {
		return err
	}
	peers, err := a.file.Peers()
	if err != nil {
		return err
	}
	base := time.Unix(0, 0)
	var now time.Time
	bus := &replayBus{}
	cfg.Logger = a.logger
	cfg.Now = func() time.Time { return now }
	cfg.Bus = bus
	cfg.Notifier = notifier
	// Firmware requested packets are accepted and discarded.
	cfg.Sink = wl12xx.TxSinkFunc(func(*txdata.Packet) error { return nil })
	core := wl12xx.New(cfg)
	for _, cc := range conns {
		if err := core.AddConn(cc); err != nil {
			return err
		}
	}
	for _, p := range peers {
		if err := core.AddPeer(p.Role, p.Link, p.Addr, p.Encrypt); err != nil {
			return err
		}
	}
	for i, e := range trace {
		now = base.Add(e.at)
		bus.record = e.record
		if err := core.HandleEvent(ctx, i%2); err != nil {
			return fmt.Errorf("record %d: %w", i+1, err)
		}
	}
	a.logger.Info("replay:done", "records", len(trace), "acks", bus.acks)
	return nil
}

// replayBus serves the current trace record from both mailboxes.
type replayBus struct {
	record []byte
	acks   int
}

func (b *replayBus) ReadMailbox(_ context.Context, _ int, dst []byte) error {
	if len(b.record) < len(dst) {
		return errors.New("replay: short record")
	}
	copy(dst, b.record)
	return nil
}

func (b *replayBus) AckEvent(context.Context) error {
	b.acks++
	return nil
}

// jsonNotifier writes one JSON document per notification.
type jsonNotifier struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newJSONNotifier(w io.Writer) *jsonNotifier {
	return &jsonNotifier{enc: json.NewEncoder(w)}
}

func (j *jsonNotifier) Notify(n wl12xx.Notification) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.enc.Encode(n)
}

type multiNotifier []wl12xx.Notifier

func (m multiNotifier) Notify(n wl12xx.Notification) {
	for _, notifier := range m {
		notifier.Notify(n)
	}
}
