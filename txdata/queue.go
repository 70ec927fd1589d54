package txdata

import (
	"log/slog"
	"sync"
	"time"

	"github.com/soypat/seqs"
)

// Packet is a frame waiting in a link queue.
type Packet struct {
	Link uint8
	AC   AC
	// TID is the 802.1d priority the packet was submitted with.
	TID     uint8
	Payload []byte
	// Encrypt is copied from the link when the packet is queued.
	Encrypt bool
	// Dummy packets are requested by the firmware to keep its rx path fed.
	Dummy bool
	// Seq is the hardware descriptor sequence, set once the packet is handed to the device.
	Seq seqs.Value
}

// Backpressure receives flow control signals for a (link, AC) queue.
// Methods are called without any queue lock held.
type Backpressure interface {
	// QueueFull is called when the queue stops accepting packets.
	QueueFull(link uint8, ac AC)
	// QueueDrained is called once the queue is below its low-water mark again.
	QueueDrained(link uint8, ac AC)
}

// QueueCounters are the per-queue statistics.
type QueueCounters struct {
	Enqueued    uint32
	Dequeued    uint32
	Requeued    uint32
	Transmitted uint32
	Dropped     uint32
}

// QueuesConfig configures the link queue manager.
type QueuesConfig struct {
	Ledger LedgerConfig
	// Depth is the maximum number of packets in a queue of each access category.
	Depth [NumAC]int
	// LowWater is the depth below which an asserted backpressure is cleared.
	// Zero means half of Depth.
	LowWater [NumAC]int
	// PaceThreshold is the queue depth that triggers a transmit pass right away.
	PaceThreshold [NumAC]int
	PaceTimeout   time.Duration
	Backpressure  Backpressure
	// Kick starts a transmit pass. It is called without any queue lock held.
	Kick   func()
	Logger *slog.Logger
}

type linkQueue struct {
	pkts     []*Packet
	busy     bool
	stopped  bool
	counters QueueCounters
}

type dataLink struct {
	enabled bool
	encrypt bool
	queues  [NumAC]linkQueue
}

// Queues is the link queue manager: one FIFO per (link, access category),
// served round robin and admitted against a shared [Ledger].
type Queues struct {
	mu sync.Mutex
	logger
	ledger   *Ledger
	pacer    *Pacer
	bp       Backpressure
	kick     func()
	links    []dataLink
	depth    [NumAC]int
	lowWater [NumAC]int
	// next is the flattened (link*NumAC + ac) position where the next round-robin scan starts.
	next          int
	linkNotFound  uint32
	noResources   uint32
	clsfrMismatch uint32
	// accountErrs counts ledger releases that found no matching admission.
	accountErrs uint32
}

type bpSignal struct {
	link    uint8
	ac      AC
	drained bool
}

// NewQueues returns a queue manager with every link disabled.
func NewQueues(cfg QueuesConfig) *Queues {
	if cfg.Ledger.Logger == nil {
		cfg.Ledger.Logger = cfg.Logger
	}
	q := &Queues{
		logger: logger{log: cfg.Logger},
		ledger: NewLedger(cfg.Ledger),
		bp:     cfg.Backpressure,
		kick:   cfg.Kick,
		depth:  cfg.Depth,
	}
	q.links = make([]dataLink, len(q.ledger.inUseLink))
	for ac := range q.depth {
		if q.depth[ac] <= 0 {
			q.depth[ac] = 1
		}
		q.lowWater[ac] = cfg.LowWater[ac]
		if q.lowWater[ac] <= 0 || q.lowWater[ac] > q.depth[ac] {
			q.lowWater[ac] = max(q.depth[ac]/2, 1)
		}
	}
	q.pacer = NewPacer(cfg.PaceThreshold, cfg.PaceTimeout, q.pacedKick)
	return q
}

// Ledger returns the resource ledger backing the queues.
func (q *Queues) Ledger() *Ledger { return q.ledger }

// Pacer returns the send pacer of the queues.
func (q *Queues) Pacer() *Pacer { return q.pacer }

// MaxLinks returns the number of link ids managed.
func (q *Queues) MaxLinks() int { return len(q.links) }

func (q *Queues) pacedKick() {
	if q.kick != nil {
		q.kick()
	}
}

// EnableLink creates the queues of a link. Enabling an enabled link only
// updates its encryption flag.
func (q *Queues) EnableLink(link uint8, encrypt bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if int(link) >= len(q.links) {
		q.linkNotFound++
		return ErrLinkNotFound
	}
	dl := &q.links[link]
	dl.encrypt = encrypt
	if dl.enabled {
		return nil
	}
	*dl = dataLink{enabled: true, encrypt: encrypt}
	q.ledger.EnableLink(link)
	q.debug("queues:enable", slog.Int("link", int(link)), slog.Bool("encrypt", encrypt))
	return nil
}

// SetEncrypt sets the encryption flag copied into packets queued on the link.
func (q *Queues) SetEncrypt(link uint8, encrypt bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	dl, err := q.link(link)
	if err != nil {
		return err
	}
	dl.encrypt = encrypt
	return nil
}

// DisableLink is Flush by another name: the queues of a disabled link are drained.
func (q *Queues) DisableLink(link uint8) (dropped int) {
	return q.Flush(link)
}

// Flush drains every queue of the link, releasing each packet's ledger slot
// exactly once, then disables the link and resets its counters.
// Queues that had asserted backpressure are signalled drained, as are queues
// of other links waiting on the slots given back.
func (q *Queues) Flush(link uint8) (dropped int) {
	q.mu.Lock()
	if int(link) >= len(q.links) || !q.links[link].enabled {
		q.mu.Unlock()
		return 0
	}
	dl := &q.links[link]
	var signals []bpSignal
	for ac := range dl.queues {
		lq := &dl.queues[ac]
		for _, pkt := range lq.pkts {
			q.release(pkt)
			dropped++
		}
		if lq.stopped {
			signals = append(signals, bpSignal{link: link, ac: AC(ac), drained: true})
		}
	}
	*dl = dataLink{}
	q.ledger.DisableLink(link)
	signals = append(signals, q.resumeBelowLowWater()...)
	q.debug("queues:flush", slog.Int("link", int(link)), slog.Int("dropped", dropped))
	q.mu.Unlock()
	q.signal(signals)
	return dropped
}

// Enqueue classifies the packet by its priority tag and appends it to the
// tail of its (link, AC) queue. It returns ErrLinkNotFound if the link is not
// enabled and ErrResourceExhausted if the queue is full or the ledger denies
// a slot; in both cases the packet is dropped.
func (q *Queues) Enqueue(link, tid uint8, payload []byte) (*Packet, error) {
	return q.enqueue(link, tid, payload, false)
}

// EnqueueDummy queues an empty packet at the highest priority.
func (q *Queues) EnqueueDummy(link uint8) (*Packet, error) {
	return q.enqueue(link, MaxTID, nil, true)
}

func (q *Queues) enqueue(link, tid uint8, payload []byte, dummy bool) (*Packet, error) {
	q.mu.Lock()
	dl, err := q.link(link)
	if err != nil {
		q.mu.Unlock()
		return nil, err
	}
	ac, ok := Classify(tid)
	if !ok {
		q.clsfrMismatch++
	}
	lq := &dl.queues[ac]
	var signals []bpSignal
	if len(lq.pkts) >= q.depth[ac] || !q.ledger.Admit(ac, link) {
		lq.counters.Dropped++
		q.noResources++
		if !lq.stopped {
			// Resumes on the next released slot once below low water.
			lq.stopped = true
			signals = append(signals, bpSignal{link: link, ac: ac})
		}
		q.mu.Unlock()
		q.signal(signals)
		q.trace("queues:drop", slog.Int("link", int(link)), slog.String("ac", ac.String()))
		return nil, ErrResourceExhausted
	}
	pkt := &Packet{Link: link, AC: ac, TID: tid, Payload: payload, Encrypt: dl.encrypt, Dummy: dummy}
	lq.pkts = append(lq.pkts, pkt)
	lq.counters.Enqueued++
	depth := len(lq.pkts)
	if depth >= q.depth[ac] && !lq.stopped {
		lq.stopped = true
		signals = append(signals, bpSignal{link: link, ac: ac})
	}
	q.mu.Unlock()
	q.signal(signals)
	if q.pacer.Queued(ac, depth) {
		q.pacedKick()
	}
	return pkt, nil
}

// Dequeue removes the packet at the head of the next eligible queue in
// round-robin order, releasing its ledger slot. Disabled and busy queues are
// skipped. It returns false if no queue has a packet to send.
func (q *Queues) Dequeue() (*Packet, bool) {
	q.mu.Lock()
	n := len(q.links) * NumAC
	for i := 0; i < n; i++ {
		pos := (q.next + i) % n
		dl := &q.links[pos/NumAC]
		if !dl.enabled {
			continue
		}
		lq := &dl.queues[pos%NumAC]
		if lq.busy || len(lq.pkts) == 0 {
			continue
		}
		pkt := lq.pkts[0]
		lq.pkts[0] = nil
		lq.pkts = lq.pkts[1:]
		lq.counters.Dequeued++
		q.next = (pos + 1) % n
		q.release(pkt)
		signals := q.resumeBelowLowWater()
		q.mu.Unlock()
		q.signal(signals)
		return pkt, true
	}
	q.mu.Unlock()
	return nil, false
}

// Requeue puts a packet the device could not accept back at the head of its
// queue. The packet needs room in the queue and a new ledger slot; if either
// is missing, or the link went away, the packet is dropped and an error
// returned. A full queue asserts backpressure as Enqueue does.
func (q *Queues) Requeue(pkt *Packet) error {
	q.mu.Lock()
	dl, err := q.link(pkt.Link)
	if err != nil {
		q.mu.Unlock()
		return err
	}
	ac := pkt.AC
	lq := &dl.queues[ac]
	var signals []bpSignal
	if len(lq.pkts) >= q.depth[ac] || !q.ledger.Admit(ac, pkt.Link) {
		lq.counters.Dropped++
		q.noResources++
		if !lq.stopped {
			lq.stopped = true
			signals = append(signals, bpSignal{link: pkt.Link, ac: ac})
		}
		q.mu.Unlock()
		q.signal(signals)
		q.trace("queues:requeue-drop", slog.Int("link", int(pkt.Link)), slog.String("ac", ac.String()))
		return ErrResourceExhausted
	}
	lq.pkts = append(lq.pkts, nil)
	copy(lq.pkts[1:], lq.pkts)
	lq.pkts[0] = pkt
	lq.counters.Requeued++
	if len(lq.pkts) >= q.depth[ac] && !lq.stopped {
		lq.stopped = true
		signals = append(signals, bpSignal{link: pkt.Link, ac: ac})
	}
	q.mu.Unlock()
	q.signal(signals)
	return nil
}

// SetBusy marks a queue as busy in the device. Busy queues are skipped by Dequeue.
func (q *Queues) SetBusy(link uint8, ac AC, busy bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if int(link) < len(q.links) && ac < NumAC {
		q.links[link].queues[ac].busy = busy
	}
}

// ClearBusy clears the busy mark of every queue.
func (q *Queues) ClearBusy() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.links {
		for ac := range q.links[i].queues {
			q.links[i].queues[ac].busy = false
		}
	}
}

// MarkTransmitted counts a packet the device accepted.
func (q *Queues) MarkTransmitted(pkt *Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if int(pkt.Link) < len(q.links) && q.links[pkt.Link].enabled && pkt.AC < NumAC {
		q.links[pkt.Link].queues[pkt.AC].counters.Transmitted++
	}
}

// MarkDropped counts a dequeued packet the device rejected.
func (q *Queues) MarkDropped(pkt *Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if int(pkt.Link) < len(q.links) && q.links[pkt.Link].enabled && pkt.AC < NumAC {
		q.links[pkt.Link].queues[pkt.AC].counters.Dropped++
	}
}

// Len returns the number of packets queued on every link.
func (q *Queues) Len() (n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.links {
		for ac := range q.links[i].queues {
			n += len(q.links[i].queues[ac].pkts)
		}
	}
	return n
}

// QueueStats describes one (link, AC) queue.
type QueueStats struct {
	Link    uint8
	AC      AC
	Depth   int
	Busy    bool
	Stopped bool
	QueueCounters
}

// Stats is a snapshot of the queue manager counters.
type Stats struct {
	// Queues of enabled links, ordered by link then access category.
	Queues             []QueueStats
	LinkNotFound       uint32
	NoResources        uint32
	ClassifierMismatch uint32
	PaceTimeouts       uint32
	// AccountingErrors counts slots released without a matching admission.
	AccountingErrors uint32
}

// Stats returns a snapshot of the queue counters.
func (q *Queues) Stats() Stats {
	q.mu.Lock()
	s := Stats{
		LinkNotFound:       q.linkNotFound,
		NoResources:        q.noResources,
		ClassifierMismatch: q.clsfrMismatch,
		AccountingErrors:   q.accountErrs,
	}
	for i := range q.links {
		dl := &q.links[i]
		if !dl.enabled {
			continue
		}
		for ac := range dl.queues {
			lq := &dl.queues[ac]
			s.Queues = append(s.Queues, QueueStats{
				Link:          uint8(i),
				AC:            AC(ac),
				Depth:         len(lq.pkts),
				Busy:          lq.busy,
				Stopped:       lq.stopped,
				QueueCounters: lq.counters,
			})
		}
	}
	q.mu.Unlock()
	s.PaceTimeouts = q.pacer.Timeouts()
	return s
}

// link returns an enabled link. Must be called with q.mu held.
func (q *Queues) link(link uint8) (*dataLink, error) {
	if int(link) >= len(q.links) || !q.links[link].enabled {
		q.linkNotFound++
		return nil, ErrLinkNotFound
	}
	return &q.links[link], nil
}

// release gives back the ledger slot of a packet leaving its queue.
// Must be called with q.mu held.
func (q *Queues) release(pkt *Packet) {
	if err := q.ledger.Release(pkt.AC, pkt.Link); err != nil {
		q.accountErrs++
		q.warn("queues:release", slog.Int("link", int(pkt.Link)), slog.String("ac", pkt.AC.String()), slog.String("err", err.Error()))
	}
}

// resumeBelowLowWater clears backpressure of stopped queues that have drained
// below their low-water mark. Must be called with q.mu held.
func (q *Queues) resumeBelowLowWater() (signals []bpSignal) {
	for i := range q.links {
		dl := &q.links[i]
		if !dl.enabled {
			continue
		}
		for ac := range dl.queues {
			lq := &dl.queues[ac]
			if lq.stopped && len(lq.pkts) < q.lowWater[ac] {
				lq.stopped = false
				signals = append(signals, bpSignal{link: uint8(i), ac: AC(ac), drained: true})
			}
		}
	}
	return signals
}

func (q *Queues) signal(signals []bpSignal) {
	if q.bp == nil {
		return
	}
	for _, s := range signals {
		if s.drained {
			q.bp.QueueDrained(s.link, s.ac)
		} else {
			q.bp.QueueFull(s.link, s.ac)
		}
	}
}
