package txdata

import (
	"errors"
	"log/slog"
	"sync"
)

var (
	ErrLinkNotFound       = errors.New("txdata: link not found")
	ErrResourceExhausted  = errors.New("txdata: no tx resources")
	ErrInvariantViolation = errors.New("txdata: resource accounting invariant violated")
)

// LedgerConfig holds the packet budgets of the resource ledger.
type LedgerConfig struct {
	// MaxTotal is the size of the packet pool shared by every queue.
	MaxTotal uint32
	// MinAC is the number of packets guaranteed to each access category.
	MinAC [NumAC]uint32
	// MinLink is the number of packets guaranteed to each enabled link.
	MinLink uint32
	// MaxLinks is the number of link ids (HLIDs) tracked.
	MaxLinks int
	Logger   *slog.Logger
}

// Ledger accounts in-use packet slots per access category and per link
// against their minimum guarantees and the shared pool.
//
// Guarantees are floors: a category or link is admitted up to its guarantee
// whenever the pool has room, and usage above it is drawn from the slack left
// over once every enabled member's guarantee is reserved. Disabled links
// reserve nothing. Enabling a link may leave others above their new share;
// they are not evicted, they only stop growing until they drain.
type Ledger struct {
	mu sync.Mutex
	logger
	maxTotal    uint32
	minAC       [NumAC]uint32
	minLink     uint32
	inUseAC     [NumAC]uint32
	inUseLink   []uint32
	linkEnabled []bool
	total       uint32
	// Slack available above the guarantees, recomputed on membership change.
	sharedAC   uint32
	sharedLink uint32
}

// NewLedger returns a ledger with every link disabled.
func NewLedger(cfg LedgerConfig) *Ledger {
	if cfg.MaxLinks <= 0 {
		cfg.MaxLinks = 1
	}
	l := &Ledger{
		logger:      logger{log: cfg.Logger},
		maxTotal:    cfg.MaxTotal,
		minAC:       cfg.MinAC,
		minLink:     cfg.MinLink,
		inUseLink:   make([]uint32, cfg.MaxLinks),
		linkEnabled: make([]bool, cfg.MaxLinks),
	}
	l.recompute()
	return l
}

// Admit reserves a packet slot for the access category and link. It returns
// false, leaving the ledger unchanged, if the slot would exceed the global
// maximum, or take the category or link above its guarantee with no shared
// slack left.
func (l *Ledger) Admit(ac AC, link uint8) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ac >= NumAC || int(link) >= len(l.inUseLink) {
		return false
	}
	l.inUseAC[ac]++
	l.inUseLink[link]++
	l.total++
	acOver := l.inUseAC[ac] > l.minAC[ac] && l.overAC() > l.sharedAC
	linkOver := l.inUseLink[link] > l.linkGuarantee(int(link)) && l.overLink() > l.sharedLink
	if l.total > l.maxTotal || acOver || linkOver {
		l.inUseAC[ac]--
		l.inUseLink[link]--
		l.total--
		l.trace("ledger:deny", slog.String("ac", ac.String()), slog.Int("link", int(link)), slog.Uint64("total", uint64(l.total)))
		return false
	}
	return true
}

// Release frees a slot previously reserved with Admit. Releasing a slot that
// was never admitted returns ErrInvariantViolation after clamping the counters
// at zero; builds with the wldebug tag panic instead.
func (l *Ledger) Release(ac AC, link uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ac >= NumAC || int(link) >= len(l.inUseLink) {
		return l.violation("release out of range", ac, link)
	}
	if l.inUseAC[ac] == 0 || l.inUseLink[link] == 0 || l.total == 0 {
		l.inUseAC[ac] = satsub(l.inUseAC[ac], 1)
		l.inUseLink[link] = satsub(l.inUseLink[link], 1)
		l.total = satsub(l.total, 1)
		return l.violation("release without admit", ac, link)
	}
	l.inUseAC[ac]--
	l.inUseLink[link]--
	l.total--
	return nil
}

func (l *Ledger) violation(msg string, ac AC, link uint8) error {
	if debugLedger {
		panic("txdata: " + msg)
	}
	l.logerr("ledger:"+msg, slog.String("ac", ac.String()), slog.Int("link", int(link)))
	return ErrInvariantViolation
}

// EnableLink adds the link to the set of members holding a guarantee and
// redistributes the shared slack.
func (l *Ledger) EnableLink(link uint8) {
	l.setLink(link, true)
}

// DisableLink releases the link's guarantee back into the shared slack.
func (l *Ledger) DisableLink(link uint8) {
	l.setLink(link, false)
}

func (l *Ledger) setLink(link uint8, enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if int(link) >= len(l.linkEnabled) || l.linkEnabled[link] == enabled {
		return
	}
	l.linkEnabled[link] = enabled
	l.recompute()
}

// recompute derives the shared slack from the enabled membership.
func (l *Ledger) recompute() {
	l.sharedAC = satsub(l.maxTotal, sum(l.minAC[:]))
	var reserved uint32
	for _, enabled := range l.linkEnabled {
		if enabled {
			reserved += l.minLink
		}
	}
	l.sharedLink = satsub(l.maxTotal, reserved)
	l.debug("ledger:recompute", slog.Uint64("sharedAC", uint64(l.sharedAC)), slog.Uint64("sharedLink", uint64(l.sharedLink)))
}

func (l *Ledger) linkGuarantee(link int) uint32 {
	if l.linkEnabled[link] {
		return l.minLink
	}
	return 0
}

// overAC is the number of slots in use above the category guarantees.
func (l *Ledger) overAC() (over uint32) {
	for ac, n := range l.inUseAC {
		over += satsub(n, l.minAC[ac])
	}
	return over
}

// overLink is the number of slots in use above the link guarantees.
func (l *Ledger) overLink() (over uint32) {
	for link, n := range l.inUseLink {
		over += satsub(n, l.linkGuarantee(link))
	}
	return over
}

// LedgerSnapshot is a point-in-time copy of the ledger counters.
type LedgerSnapshot struct {
	Total    uint32
	MaxTotal uint32
	InUseAC  [NumAC]uint32
	// EffectiveAC is the most packets each category may hold.
	EffectiveAC [NumAC]uint32
	InUseLink   []uint32
	// EffectiveLink is the most packets each link may hold.
	EffectiveLink []uint32
}

// Snapshot returns a copy of the ledger counters and effective totals.
func (l *Ledger) Snapshot() LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := LedgerSnapshot{
		Total:         l.total,
		MaxTotal:      l.maxTotal,
		InUseAC:       l.inUseAC,
		InUseLink:     append([]uint32(nil), l.inUseLink...),
		EffectiveLink: make([]uint32, len(l.inUseLink)),
	}
	for ac := range s.EffectiveAC {
		s.EffectiveAC[ac] = min(l.minAC[ac]+l.sharedAC, l.maxTotal)
	}
	for link := range s.EffectiveLink {
		s.EffectiveLink[link] = min(l.linkGuarantee(link)+l.sharedLink, l.maxTotal)
	}
	return s
}
