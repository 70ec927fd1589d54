package wl12xx

import (
	"context"
	"fmt"
	"log/slog"
)

// NotifyKind identifies a notification sent to the connection management layer.
type NotifyKind uint8

const (
	_ NotifyKind = iota
	// NotifyRSSILow reports the signal crossed below the station's RSSI threshold.
	NotifyRSSILow
	// NotifyRSSIHigh reports the signal crossed above the station's RSSI threshold.
	NotifyRSSIHigh
	// NotifyBeaconLoss is the connection quality report sent when a beacon
	// loss window opens.
	NotifyBeaconLoss
	// NotifyConnectionLoss reports beacons have been missing for longer than the grace window.
	NotifyConnectionLoss
	NotifyChannelSwitch
	// NotifyLowAck reports a peer that stopped acknowledging frames.
	NotifyLowAck
	NotifySchedScanStopped
	NotifySchedScanResults
	NotifyScanComplete
	// NotifyStopRxBA asks for the rx block-ack sessions in TIDs to be torn down.
	NotifyStopRxBA
	// NotifyRecalcRxStreaming asks for the rx streaming parameters to be
	// recalculated after coexistence protection ended.
	NotifyRecalcRxStreaming
)

var notifyKindNames = [...]string{
	NotifyRSSILow:           "rssi-low",
	NotifyRSSIHigh:          "rssi-high",
	NotifyBeaconLoss:        "beacon-loss",
	NotifyConnectionLoss:    "connection-loss",
	NotifyChannelSwitch:     "channel-switch",
	NotifyLowAck:            "low-ack",
	NotifySchedScanStopped:  "sched-scan-stopped",
	NotifySchedScanResults:  "sched-scan-results",
	NotifyScanComplete:      "scan-complete",
	NotifyStopRxBA:          "stop-rx-ba",
	NotifyRecalcRxStreaming: "recalc-rx-streaming",
}

func (k NotifyKind) String() string {
	if int(k) < len(notifyKindNames) && notifyKindNames[k] != "" {
		return notifyKindNames[k]
	}
	return "notify(" + fmt.Sprint(uint8(k)) + ")"
}

func (k NotifyKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// MAC is an IEEE 802 hardware address.
type MAC [6]byte

func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

func (m MAC) IsZero() bool { return m == MAC{} }

func (m MAC) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Notification is an event delivered to the connection management layer.
// Fields not relevant to Kind are left zero.
type Notification struct {
	Kind NotifyKind `json:"kind"`
	// Role is the role the notification applies to, or AnyRole for device-wide events.
	Role uint8 `json:"role"`
	Link uint8 `json:"link"`
	Addr MAC   `json:"addr,omitzero"`
	// Success is the channel switch result.
	Success bool `json:"success,omitempty"`
	// Retries is the number of failed transmissions reported with NotifyLowAck.
	Retries int `json:"retries,omitempty"`
	// TIDs is the bitmap of rx block-ack sessions to stop.
	TIDs uint8 `json:"tids,omitempty"`
	// RSSI is the metric that triggered an RSSI notification.
	RSSI   int8  `json:"rssi,omitempty"`
	Status uint8 `json:"status,omitempty"`
}

// Notifier receives notifications. Notify is never called with a Core lock held.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier logs notifications at info level.
type LogNotifier struct {
	Logger *slog.Logger
}

func (ln LogNotifier) Notify(n Notification) {
	if ln.Logger == nil {
		return
	}
	ln.Logger.LogAttrs(context.Background(), slog.LevelInfo, "notify", n.Attrs()...)
}

// Attrs returns the fields of n relevant to its kind as log attributes.
func (n Notification) Attrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("kind", n.Kind.String()),
		slog.Int("role", int(n.Role)),
	}
	switch n.Kind {
	case NotifyRSSILow, NotifyRSSIHigh:
		attrs = append(attrs, slog.Int("rssi", int(n.RSSI)))
	case NotifyChannelSwitch:
		attrs = append(attrs, slog.Bool("success", n.Success))
	case NotifyLowAck:
		attrs = append(attrs, slog.Int("link", int(n.Link)), slog.String("addr", n.Addr.String()), slog.Int("retries", n.Retries))
	case NotifyStopRxBA:
		attrs = append(attrs, slog.String("addr", n.Addr.String()), slog.Int("tids", int(n.TIDs)))
	case NotifyScanComplete, NotifySchedScanStopped:
		attrs = append(attrs, slog.Int("status", int(n.Status)))
	}
	return attrs
}
