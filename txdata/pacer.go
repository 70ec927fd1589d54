package txdata

import (
	"sync"
	"time"
)

// DefaultPaceTimeout is how long packets below the pace threshold wait
// before a transmit pass is started anyway.
const DefaultPaceTimeout = time.Millisecond

// Pacer batches transmit passes: a queue that holds fewer packets than its
// pace threshold arms a timer instead of kicking the transmit path right away.
type Pacer struct {
	mu        sync.Mutex
	threshold [NumAC]int
	timeout   time.Duration
	kick      func()
	timer     *time.Timer
	gen       uint32
	armed     bool
	timeouts  uint32
}

// NewPacer returns a pacer calling kick when a transmit pass is due. A
// threshold of 1 or less, or a non-positive timeout, disables pacing for that queue.
func NewPacer(threshold [NumAC]int, timeout time.Duration, kick func()) *Pacer {
	return &Pacer{threshold: threshold, timeout: timeout, kick: kick}
}

// Queued reports that a queue of the access category now holds depth packets.
// It returns true if the caller should start a transmit pass immediately,
// in which case any pending pace timer is cancelled.
func (p *Pacer) Queued(ac AC, depth int) (kickNow bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timeout <= 0 || ac >= NumAC || depth >= p.threshold[ac] {
		p.disarm()
		return true
	}
	if !p.armed {
		p.armed = true
		p.gen++
		gen := p.gen
		p.timer = time.AfterFunc(p.timeout, func() { p.expire(gen) })
	}
	return false
}

// Stop cancels a pending pace timer.
func (p *Pacer) Stop() {
	p.mu.Lock()
	p.disarm()
	p.mu.Unlock()
}

// Timeouts returns how many transmit passes were started by the pace timer.
func (p *Pacer) Timeouts() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeouts
}

func (p *Pacer) disarm() {
	if p.armed {
		p.timer.Stop()
		p.armed = false
	}
}

func (p *Pacer) expire(gen uint32) {
	p.mu.Lock()
	if !p.armed || gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.armed = false
	p.timeouts++
	kick := p.kick
	p.mu.Unlock()
	if kick != nil {
		kick()
	}
}
