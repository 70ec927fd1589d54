package wl12xx

import (
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/soypat/wl12xx/mbox"
)

// Mode is the operating mode of a role.
type Mode uint8

const (
	ModeStation Mode = iota
	ModeAP
)

func (m Mode) String() string {
	switch m {
	case ModeStation:
		return "sta"
	case ModeAP:
		return "ap"
	}
	return "mode?"
}

type rssiLevel uint8

const (
	rssiUnknown rssiLevel = iota
	rssiLow
	rssiHigh
)

// ConnConfig describes a connection context created by the connection management layer.
type ConnConfig struct {
	Role uint8
	Mode Mode
	// Link is the HLID of the station's AP, or the broadcast link of an AP.
	Link  uint8
	BSSID MAC
	// P2P client connections report beacon loss as connection loss right away.
	P2P     bool
	Encrypt bool
	// RSSIThreshold is the metric at or below which the signal is considered low.
	RSSIThreshold int8
}

// Conn is the per-role connection context.
type Conn struct {
	ConnConfig
	baAllowed bool
	// rxBA is the station's bitmap of TIDs with an active rx block-ack session.
	rxBA         uint8
	peers        map[uint8]*peer
	csInProgress bool
	firstBcnLoss time.Time
	lastBcnLoss  time.Time
	lossReported bool
	rssi         rssiLevel
}

type peer struct {
	addr MAC
	rxBA uint8
}

// ConnState is a snapshot of a connection context.
type ConnState struct {
	ConnConfig
	BAAllowed     bool
	RxBA          uint8
	Peers         int
	ChannelSwitch bool
	// RSSILow is valid only if RSSIKnown is set.
	RSSILow      bool
	RSSIKnown    bool
	BeaconLossAt time.Time
}

// AddConn creates the connection context of a role and enables its link queues.
func (c *Core) AddConn(cfg ConnConfig) error {
	c.lock()
	defer c.unlock()
	i, found := slices.BinarySearchFunc(c.conns, cfg.Role, cmpRole)
	if found {
		return errConnExists
	}
	err := c.queues.EnableLink(cfg.Link, cfg.Encrypt)
	if err != nil {
		return err
	}
	cn := &Conn{ConnConfig: cfg, baAllowed: true}
	if cfg.Mode == ModeAP {
		cn.peers = make(map[uint8]*peer)
	}
	c.conns = slices.Insert(c.conns, i, cn)
	c.debug("conn:add", slog.Int("role", int(cfg.Role)), slog.String("mode", cfg.Mode.String()), slog.Int("link", int(cfg.Link)))
	return nil
}

// RemoveConn deletes the connection context of a role, flushing the queues
// of its link and of every peer.
func (c *Core) RemoveConn(role uint8) error {
	c.lock()
	defer c.unlock()
	i, found := slices.BinarySearchFunc(c.conns, role, cmpRole)
	if !found {
		return errConnMissing
	}
	cn := c.conns[i]
	for _, hlid := range cn.peerLinks() {
		c.flushLink(hlid)
	}
	c.flushLink(cn.Link)
	c.conns = slices.Delete(c.conns, i, i+1)
	if c.schedScan && c.schedRole == role {
		c.schedScan = false
	}
	c.debug("conn:remove", slog.Int("role", int(role)))
	return nil
}

// AddPeer registers a station associated to an access point role.
func (c *Core) AddPeer(role, hlid uint8, addr MAC, encrypt bool) error {
	c.lock()
	defer c.unlock()
	cn := c.conn(role)
	switch {
	case cn == nil:
		return errConnMissing
	case cn.Mode != ModeAP:
		return errNotAP
	}
	if err := c.queues.EnableLink(hlid, encrypt); err != nil {
		return err
	}
	cn.peers[hlid] = &peer{addr: addr}
	return nil
}

// RemovePeer removes a peer from an access point role and flushes its queues.
func (c *Core) RemovePeer(role, hlid uint8) error {
	c.lock()
	defer c.unlock()
	cn := c.conn(role)
	switch {
	case cn == nil:
		return errConnMissing
	case cn.Mode != ModeAP:
		return errNotAP
	}
	if _, ok := cn.peers[hlid]; ok {
		delete(cn.peers, hlid)
		c.flushLink(hlid)
	}
	return nil
}

// SetRxBA records the start or stop of an rx block-ack session. hlid selects
// the peer of an access point role and is ignored for stations. Starting a
// session fails while the firmware disallows rx block-ack for the role.
func (c *Core) SetRxBA(role, hlid, tid uint8, active bool) error {
	c.lock()
	defer c.unlock()
	cn := c.conn(role)
	if cn == nil {
		return errConnMissing
	}
	if active && !cn.baAllowed {
		return errBADenied
	}
	bitmap := &cn.rxBA
	if cn.Mode == ModeAP {
		p, ok := cn.peers[hlid]
		if !ok {
			return errConnMissing
		}
		bitmap = &p.rxBA
	}
	if active {
		*bitmap |= 1 << (tid & 7)
	} else {
		*bitmap &^= 1 << (tid & 7)
	}
	return nil
}

// StartChannelSwitch marks a station as switching channels. The switch ends
// with the firmware's channel switch complete event.
func (c *Core) StartChannelSwitch(role uint8) error {
	c.lock()
	defer c.unlock()
	cn := c.conn(role)
	switch {
	case cn == nil:
		return errConnMissing
	case cn.Mode != ModeStation:
		return errNotStation
	}
	cn.csInProgress = true
	return nil
}

// SetScheduledScan records whether a scheduled (periodic) scan is running on role.
func (c *Core) SetScheduledScan(role uint8, active bool) {
	c.lock()
	defer c.unlock()
	c.schedScan = active
	c.schedRole = role
}

// SetRSSIThreshold changes a station's RSSI threshold. The next trigger
// event is always reported.
func (c *Core) SetRSSIThreshold(role uint8, threshold int8) error {
	c.lock()
	defer c.unlock()
	cn := c.conn(role)
	if cn == nil {
		return errConnMissing
	}
	cn.RSSIThreshold = threshold
	cn.rssi = rssiUnknown
	return nil
}

// Conn returns a snapshot of the connection context of role.
func (c *Core) Conn(role uint8) (ConnState, bool) {
	c.lock()
	defer c.unlock()
	cn := c.conn(role)
	if cn == nil {
		return ConnState{}, false
	}
	return ConnState{
		ConnConfig:    cn.ConnConfig,
		BAAllowed:     cn.baAllowed,
		RxBA:          cn.rxBA,
		Peers:         len(cn.peers),
		ChannelSwitch: cn.csInProgress,
		RSSILow:       cn.rssi == rssiLow,
		RSSIKnown:     cn.rssi != rssiUnknown,
		BeaconLossAt:  cn.firstBcnLoss,
	}, true
}

// SoftGemini reports whether bluetooth coexistence protection is active.
func (c *Core) SoftGemini() bool {
	c.lock()
	defer c.unlock()
	return c.softGemini
}

// peerLinks returns the peer HLIDs of an access point in ascending order.
func (cn *Conn) peerLinks() []uint8 {
	return slices.Sorted(maps.Keys(cn.peers))
}

// matchesRole reports whether a role-scoped event addressed to role applies to cn.
func (cn *Conn) matchesRole(role uint8) bool {
	return role == mbox.AnyRole || role == cn.Role
}

// flushLink drops the queued packets of a link and disables it, except for
// the system link which stays enabled.
func (c *Core) flushLink(link uint8) {
	n := c.queues.Flush(link)
	if link == c.systemLink {
		c.queues.EnableLink(link, false)
	}
	if n > 0 {
		c.debug("conn:flush", slog.Int("link", int(link)), slog.Int("dropped", n))
	}
}
