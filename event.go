package wl12xx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/soypat/wl12xx/mbox"
)

// HandleEvent processes the event mailbox num (0 or 1) after an event
// interrupt: the record is read through the Bus, dispatched and acknowledged.
// A record that fails to decode is dropped without touching any state.
// Bus I/O runs without holding the core lock; only dispatch is serialized.
func (c *Core) HandleEvent(ctx context.Context, num int) (err error) {
	if num < 0 || num > 1 {
		return ErrInvalidMailbox
	}
	if c.bus == nil {
		return errors.New("wl12xx: no bus configured")
	}
	var buf [mbox.RecordLen]byte
	err = c.bus.ReadMailbox(ctx, num, buf[:])
	if err != nil {
		return fmt.Errorf("wl12xx: reading mailbox %d: %w", num, err)
	}
	d, decodeErr := mbox.Decode(buf[:])
	if decodeErr != nil {
		c.logerr("HandleEvent:decode", slog.String("err", decodeErr.Error()))
	} else {
		c.Dispatch(d)
	}
	if ackErr := c.bus.AckEvent(ctx); ackErr != nil {
		err = errors.Join(err, fmt.Errorf("wl12xx: event ack: %w", ackErr))
	}
	return err
}

// Dispatch applies a decoded mailbox record: every active event is processed
// in a fixed order within one critical section.
func (c *Core) Dispatch(d mbox.Decoded) {
	c.lock()
	defer c.unlock()
	c.dispatch(d)
}

func (c *Core) dispatch(d mbox.Decoded) {
	ev := d.Events
	if c.wakes < c.logWakes {
		c.wakes++
		for k := range ev.Kinds() {
			c.info("wake", slog.Int("n", c.wakes), slog.String("event", k.String()))
		}
	}
	if c.logenabled(levelTrace) {
		c.trace("dispatch", slog.String("events", ev.String()))
	}

	if ev.Has(mbox.KindScanComplete) {
		c.debug("dispatch:scan-complete", slog.Int("status", int(d.ScanStatus)))
		c.notify(Notification{Kind: NotifyScanComplete, Role: mbox.AnyRole, Status: d.ScanStatus})
	}
	if ev.Has(mbox.KindPeriodicScanReport) {
		c.notify(Notification{Kind: NotifySchedScanResults, Role: c.schedScanRole()})
	}
	if ev.Has(mbox.KindPeriodicScanComplete) {
		c.debug("dispatch:sched-scan-complete", slog.Int("status", int(d.SchedScanStatus)))
		if c.schedScan {
			c.schedScan = false
			c.notify(Notification{Kind: NotifySchedScanStopped, Role: c.schedRole, Status: d.SchedScanStatus})
		}
	}
	if ev.Has(mbox.KindSoftGeminiSense) {
		c.softGeminiSense(d.SoftGeminiEnable)
	}
	if ev.Has(mbox.KindRSSITrigger0) {
		c.rssiTrigger(d.RSSIMetric[0])
	}
	if ev.Has(mbox.KindBARxConstraint) {
		c.baConstraint(d.RoleID, d.RxBAAllowed)
	}
	if ev.Has(mbox.KindChannelSwitchComplete) {
		c.channelSwitchComplete(d.ChannelSwitchStatus == 0)
	}
	if ev.Has(mbox.KindDummyPacket) {
		c.dummyPacket()
	}
	if ev.Has(mbox.KindMaxTxRetry) || ev.Has(mbox.KindInactiveStation) {
		var bitmap uint16
		if ev.Has(mbox.KindMaxTxRetry) {
			bitmap |= d.TxRetryExceeded
		}
		if ev.Has(mbox.KindInactiveStation) {
			bitmap |= d.AgingStatus
		}
		c.lowAck(bitmap)
	}
	if ev.Has(mbox.KindBeaconLoss) {
		c.beaconLoss()
	}

	if c.logenabled(slog.LevelDebug) {
		for k := range ev.Kinds() {
			if !slices.Contains(handledKinds, k) {
				c.debug("dispatch:unhandled", slog.String("event", k.String()))
			}
		}
	}
}

func (c *Core) schedScanRole() uint8 {
	if c.schedScan {
		return c.schedRole
	}
	return mbox.AnyRole
}

func (c *Core) softGeminiSense(enable bool) {
	c.debug("dispatch:soft-gemini", slog.Bool("enable", enable))
	c.softGemini = enable
	if enable {
		return
	}
	for _, cn := range c.conns {
		if cn.Mode == ModeStation {
			c.notify(Notification{Kind: NotifyRecalcRxStreaming, Role: cn.Role, Link: cn.Link})
		}
	}
}

// rssiTrigger reports threshold crossings of trigger 0 to every station.
// A level is only reported when it differs from the last one reported.
func (c *Core) rssiTrigger(metric int8) {
	for _, cn := range c.conns {
		if cn.Mode != ModeStation {
			continue
		}
		level, kind := rssiHigh, NotifyRSSIHigh
		if metric <= cn.RSSIThreshold {
			level, kind = rssiLow, NotifyRSSILow
		}
		if level == cn.rssi {
			continue
		}
		cn.rssi = level
		c.notify(Notification{Kind: kind, Role: cn.Role, Link: cn.Link, RSSI: metric})
	}
}

// baConstraint applies the firmware's rx block-ack policy to the matching
// roles. Disallowing block-ack tears down every active rx session.
func (c *Core) baConstraint(role uint8, allowed bool) {
	c.debug("dispatch:ba-constraint", slog.Int("role", int(role)), slog.Bool("allowed", allowed))
	for _, cn := range c.conns {
		if !cn.matchesRole(role) {
			continue
		}
		cn.baAllowed = allowed
		if allowed {
			continue
		}
		switch cn.Mode {
		case ModeStation:
			if cn.rxBA != 0 {
				c.notify(Notification{Kind: NotifyStopRxBA, Role: cn.Role, Link: cn.Link, Addr: cn.BSSID, TIDs: cn.rxBA})
				cn.rxBA = 0
			}
		case ModeAP:
			for _, hlid := range cn.peerLinks() {
				p := cn.peers[hlid]
				if p.rxBA == 0 {
					continue
				}
				c.notify(Notification{Kind: NotifyStopRxBA, Role: cn.Role, Link: hlid, Addr: p.addr, TIDs: p.rxBA})
				p.rxBA = 0
			}
		}
	}
}

func (c *Core) channelSwitchComplete(success bool) {
	for _, cn := range c.conns {
		if cn.Mode != ModeStation || !cn.csInProgress {
			continue
		}
		cn.csInProgress = false
		c.notify(Notification{Kind: NotifyChannelSwitch, Role: cn.Role, Link: cn.Link, Success: success})
	}
}

// lowAck reports every access point peer whose HLID is set in bitmap.
func (c *Core) lowAck(bitmap uint16) {
	c.debug("dispatch:low-ack", slog.Int("bitmap", int(bitmap)))
	for _, cn := range c.conns {
		if cn.Mode != ModeAP {
			continue
		}
		for _, hlid := range cn.peerLinks() {
			if hlid >= mbox.MaxLinks || bitmap&(1<<hlid) == 0 {
				continue
			}
			c.notify(Notification{Kind: NotifyLowAck, Role: cn.Role, Link: hlid, Addr: cn.peers[hlid].addr, Retries: c.maxTxRetries})
		}
	}
}

// beaconLoss runs the beacon loss grace window of every station. A loss
// event more than ConsBcnLossTime after the previous one starts a new window;
// the connection is reported lost once per window after MaxBcnLossTime.
func (c *Core) beaconLoss() {
	now := c.now()
	for _, cn := range c.conns {
		if cn.Mode != ModeStation {
			continue
		}
		if cn.P2P {
			c.notify(Notification{Kind: NotifyConnectionLoss, Role: cn.Role, Link: cn.Link})
			continue
		}
		switch {
		case cn.lastBcnLoss.IsZero() || now.After(cn.lastBcnLoss.Add(c.consBcnLoss)):
			cn.firstBcnLoss = now
			cn.lossReported = false
			c.debug("dispatch:beacon-loss", slog.Int("role", int(cn.Role)))
			c.notify(Notification{Kind: NotifyBeaconLoss, Role: cn.Role, Link: cn.Link})
		case !cn.lossReported && now.After(cn.firstBcnLoss.Add(c.maxBcnLoss)):
			cn.lossReported = true
			c.warn("dispatch:connection-loss", slog.Int("role", int(cn.Role)), slog.Duration("since", now.Sub(cn.firstBcnLoss)))
			c.notify(Notification{Kind: NotifyConnectionLoss, Role: cn.Role, Link: cn.Link})
		}
		cn.lastBcnLoss = now
	}
}

func (c *Core) dummyPacket() {
	_, err := c.queues.EnqueueDummy(c.systemLink)
	if err != nil {
		c.warn("dispatch:dummy-packet", slog.Int("link", int(c.systemLink)), slog.String("err", err.Error()))
		return
	}
	c.kickPending.Store(true)
}
