// Package wl12xx implements the control-plane core of a TI wl12xx-class WiFi
// driver: the firmware event mailbox dispatcher and the transmit admission
// and queueing engine.
//
// Bus I/O and the connection management layer above the driver are
// collaborators supplied through [Config].
package wl12xx

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soypat/wl12xx/mbox"
	"github.com/soypat/wl12xx/txdata"
)

var (
	ErrInvalidMailbox = errors.New("wl12xx: invalid mailbox number")
	// ErrTxBusy is returned by a TxSink that cannot accept more packets on a queue.
	ErrTxBusy = errors.New("wl12xx: tx busy")

	errConnExists  = errors.New("wl12xx: role already has a connection")
	errConnMissing = errors.New("wl12xx: no connection for role")
	errNotAP       = errors.New("wl12xx: role is not an access point")
	errNotStation  = errors.New("wl12xx: role is not a station")
	errBADenied    = errors.New("wl12xx: rx block-ack not allowed by firmware")
)

// Bus reads the event mailbox of the device. Methods are called without
// the Core lock held.
type Bus interface {
	// ReadMailbox fills dst with mailbox num.
	ReadMailbox(ctx context.Context, num int, dst []byte) error
	// AckEvent tells the firmware the mailbox was processed.
	AckEvent(ctx context.Context) error
}

// TxSink hands packets to the device. Transmit returns ErrTxBusy when the
// device cannot take the packet right now, in which case it is requeued.
type TxSink interface {
	Transmit(pkt *txdata.Packet) error
}

// TxSinkFunc adapts a function to the TxSink interface.
type TxSinkFunc func(pkt *txdata.Packet) error

func (f TxSinkFunc) Transmit(pkt *txdata.Packet) error { return f(pkt) }

type Config struct {
	// MinAC is the packet guarantee of each access category.
	MinAC [txdata.NumAC]uint32
	// Depth is the maximum length of a queue of each access category.
	Depth [txdata.NumAC]int
	// LowWater is the queue length under which backpressure is released. Zero is half of Depth.
	LowWater      [txdata.NumAC]int
	PaceThreshold [txdata.NumAC]int
	// MinLink is the packet guarantee of each enabled link.
	MinLink  uint32
	MaxTotal uint32
	MaxLinks int
	// SystemLink carries firmware requested dummy packets.
	SystemLink    uint8
	PaceTimeout   time.Duration
	TxDescriptors int
	// ConsBcnLossTime is the longest gap between beacon loss events that
	// still belongs to the same loss window.
	ConsBcnLossTime time.Duration
	// MaxBcnLossTime is how long a beacon loss window may last before the
	// connection is reported lost.
	MaxBcnLossTime time.Duration
	// MaxTxRetries is reported with low-ack notifications.
	MaxTxRetries int
	// Events are the firmware events unmasked in the device.
	Events mbox.Vector
	// LogWakes is the number of initial dispatches logged at info level.
	LogWakes int

	// Now returns the current time. Defaults to time.Now.
	Now          func() time.Time
	Logger       *slog.Logger
	Notifier     Notifier
	Bus          Bus
	Sink         TxSink
	Backpressure txdata.Backpressure
}

// DefaultConfig returns the stock wl12xx tx budgets and event timeouts.
func DefaultConfig() Config {
	var events mbox.Vector
	for _, k := range handledKinds {
		events.Enable(k)
	}
	return Config{
		MinAC:           [txdata.NumAC]uint32{4, 2, 4, 4},
		Depth:           [txdata.NumAC]int{60, 10, 32, 10},
		PaceThreshold:   [txdata.NumAC]int{4, 4, 2, 1},
		MinLink:         2,
		MaxTotal:        112,
		MaxLinks:        mbox.MaxLinks,
		SystemLink:      0,
		PaceTimeout:     txdata.DefaultPaceTimeout,
		TxDescriptors:   txdata.DefaultDescriptors,
		ConsBcnLossTime: 5 * time.Second,
		MaxBcnLossTime:  10 * time.Second,
		MaxTxRetries:    100,
		Events:          events,
	}
}

// handledKinds are the events Dispatch acts upon.
var handledKinds = []mbox.Kind{
	mbox.KindScanComplete,
	mbox.KindPeriodicScanReport,
	mbox.KindPeriodicScanComplete,
	mbox.KindSoftGeminiSense,
	mbox.KindRSSITrigger0,
	mbox.KindBARxConstraint,
	mbox.KindChannelSwitchComplete,
	mbox.KindDummyPacket,
	mbox.KindMaxTxRetry,
	mbox.KindInactiveStation,
	mbox.KindBeaconLoss,
}

// Core is the driver control plane: it owns the connection contexts,
// dispatches firmware events and runs the transmit path.
type Core struct {
	mu sync.Mutex
	logger
	// kickPending is set when a transmit pass was requested while mu was held.
	kickPending atomic.Bool

	now          func() time.Time
	notifier     Notifier
	bus          Bus
	sink         TxSink
	queues       *txdata.Queues
	descs        *txdata.Descriptors
	events       mbox.Vector
	systemLink   uint8
	consBcnLoss  time.Duration
	maxBcnLoss   time.Duration
	maxTxRetries int
	logWakes     int
	wakes        int

	// conns ordered by role id.
	conns      []*Conn
	softGemini bool
	schedScan  bool
	schedRole  uint8
	// pending notifications, delivered once mu is released.
	pending []Notification
}

// New returns a Core with no connections.
func New(cfg Config) *Core {
	c := &Core{
		logger:       logger{log: cfg.Logger},
		now:          time.Now,
		notifier:     cfg.Notifier,
		bus:          cfg.Bus,
		sink:         cfg.Sink,
		events:       cfg.Events,
		systemLink:   cfg.SystemLink,
		consBcnLoss:  cfg.ConsBcnLossTime,
		maxBcnLoss:   cfg.MaxBcnLossTime,
		maxTxRetries: cfg.MaxTxRetries,
		logWakes:     cfg.LogWakes,
	}
	if cfg.Now != nil {
		c.now = cfg.Now
	}
	c.queues = txdata.NewQueues(txdata.QueuesConfig{
		Ledger: txdata.LedgerConfig{
			MaxTotal: cfg.MaxTotal,
			MinAC:    cfg.MinAC,
			MinLink:  cfg.MinLink,
			MaxLinks: cfg.MaxLinks,
			Logger:   cfg.Logger,
		},
		Depth:         cfg.Depth,
		LowWater:      cfg.LowWater,
		PaceThreshold: cfg.PaceThreshold,
		PaceTimeout:   cfg.PaceTimeout,
		Backpressure:  cfg.Backpressure,
		Kick:          c.kick,
		Logger:        cfg.Logger,
	})
	c.descs = txdata.NewDescriptors(cfg.TxDescriptors, 0)
	// The system link is always up to carry firmware requested packets.
	c.queues.EnableLink(cfg.SystemLink, false)
	return c
}

// FirmwareEventMask returns the mask to program into the firmware so that
// only the configured events are posted.
func (c *Core) FirmwareEventMask() mbox.Vector {
	return ^c.events
}

// Queues returns the link queue manager of the transmit path.
func (c *Core) Queues() *txdata.Queues { return c.queues }

// Stats returns the transmit queue statistics.
func (c *Core) Stats() txdata.Stats { return c.queues.Stats() }

func (c *Core) lock() {
	c.mu.Lock()
}

// unlock runs transmit passes requested while the lock was held, releases
// the lock and delivers pending notifications.
func (c *Core) unlock() {
	for {
		for c.kickPending.Swap(false) {
			c.txPass()
		}
		notes := c.pending
		c.pending = nil
		c.mu.Unlock()
		c.deliver(notes)
		// A kick may have raced with Unlock.
		if !c.kickPending.Load() || !c.mu.TryLock() {
			return
		}
	}
}

// kick requests a transmit pass. If the core is busy the pass runs when the
// current holder releases the lock.
func (c *Core) kick() {
	c.kickPending.Store(true)
	if c.mu.TryLock() {
		c.unlock()
	}
}

func (c *Core) notify(n Notification) {
	c.pending = append(c.pending, n)
}

func (c *Core) deliver(notes []Notification) {
	for _, n := range notes {
		if c.logenabled(slog.LevelDebug) {
			c.debug("notify", n.Attrs()...)
		}
		if c.notifier != nil {
			c.notifier.Notify(n)
		}
	}
}

// conn returns the connection of role. Must be called with mu held.
func (c *Core) conn(role uint8) *Conn {
	i, found := slices.BinarySearchFunc(c.conns, role, cmpRole)
	if !found {
		return nil
	}
	return c.conns[i]
}

func cmpRole(cn *Conn, role uint8) int {
	return int(cn.Role) - int(role)
}
