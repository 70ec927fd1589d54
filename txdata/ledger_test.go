package txdata

import (
	"errors"
	"math/rand"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		tid  uint8
		want AC
		ok   bool
	}{
		{0, ACBestEffort, true},
		{1, ACBackground, true},
		{2, ACBackground, true},
		{3, ACBestEffort, true},
		{4, ACVideo, true},
		{5, ACVideo, true},
		{6, ACVoice, true},
		{7, ACVoice, true},
		{8, ACBestEffort, false},
		{255, ACBestEffort, false},
	}
	for _, tt := range tests {
		ac, ok := Classify(tt.tid)
		if ac != tt.want || ok != tt.ok {
			t.Errorf("Classify(%d)=%s,%v want %s,%v", tt.tid, ac, ok, tt.want, tt.ok)
		}
	}
	for ac := AC(0); ac < NumAC; ac++ {
		got, ok := ParseAC(ac.String())
		if !ok || got != ac {
			t.Errorf("ParseAC(%q)=%s,%v", ac.String(), got, ok)
		}
	}
}

func TestLedgerGuaranteeFloors(t *testing.T) {
	// No slack above the AC guarantees: each category may hold exactly one packet.
	l := NewLedger(LedgerConfig{MaxTotal: 4, MinAC: [NumAC]uint32{1, 1, 1, 1}, MinLink: 1, MaxLinks: 2})
	l.EnableLink(0)
	if !l.Admit(ACBestEffort, 0) {
		t.Fatal("first BE packet denied")
	}
	if l.Admit(ACBestEffort, 0) {
		t.Fatal("BE admitted above its effective total")
	}
	if !l.Admit(ACVoice, 0) {
		t.Fatal("VO packet denied with its guarantee unused")
	}
	snap := l.Snapshot()
	if snap.Total != 2 || snap.InUseAC[ACBestEffort] != 1 || snap.InUseLink[0] != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if err := l.Release(ACBestEffort, 0); err != nil {
		t.Fatal(err)
	}
	if !l.Admit(ACBestEffort, 0) {
		t.Fatal("BE denied after release")
	}
}

func TestLedgerSlackRedistribution(t *testing.T) {
	l := NewLedger(LedgerConfig{MaxTotal: 10, MinAC: [NumAC]uint32{1, 1, 1, 1}, MinLink: 2, MaxLinks: 4})
	for link := uint8(0); link < 3; link++ {
		l.EnableLink(link)
	}
	snap := l.Snapshot()
	if snap.EffectiveLink[0] != 6 {
		t.Fatalf("effective link total with 3 links: got %d, want 6", snap.EffectiveLink[0])
	}
	if snap.EffectiveLink[3] != 4 {
		t.Fatalf("disabled link effective total: got %d, want 4", snap.EffectiveLink[3])
	}
	if snap.EffectiveAC[ACVideo] != 7 {
		t.Fatalf("effective AC total: got %d, want 7", snap.EffectiveAC[ACVideo])
	}
	l.DisableLink(2)
	snap = l.Snapshot()
	if snap.EffectiveLink[0] != 8 {
		t.Fatalf("effective link total after disable: got %d, want 8", snap.EffectiveLink[0])
	}
}

func TestLedgerLinkFloorAfterEnable(t *testing.T) {
	l := NewLedger(LedgerConfig{MaxTotal: 6, MinLink: 2, MaxLinks: 2})
	l.EnableLink(0)
	for i := 0; i < 6; i++ {
		if !l.Admit(ACBestEffort, 0) {
			t.Fatalf("link 0 packet %d denied", i)
		}
	}
	// Link 0 now holds more than its share of the slack.
	l.EnableLink(1)
	if l.Admit(ACBestEffort, 1) {
		t.Fatal("admitted above the global maximum")
	}
	if err := l.Release(ACBestEffort, 0); err != nil {
		t.Fatal(err)
	}
	if !l.Admit(ACBestEffort, 1) {
		t.Fatal("link 1 denied its guarantee")
	}
	if err := l.Release(ACBestEffort, 0); err != nil {
		t.Fatal(err)
	}
	if l.Admit(ACBestEffort, 0) {
		t.Fatal("overcommitted link 0 grew")
	}
	if !l.Admit(ACBestEffort, 1) {
		t.Fatal("link 1 denied its second guaranteed slot")
	}
	snap := l.Snapshot()
	if snap.InUseLink[0] != 4 || snap.InUseLink[1] != 2 || snap.Total != 6 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestLedgerReleaseWithoutAdmit(t *testing.T) {
	if debugLedger {
		t.Skip("wldebug builds panic on accounting violations")
	}
	l := NewLedger(LedgerConfig{MaxTotal: 8, MaxLinks: 1})
	l.EnableLink(0)
	err := l.Release(ACVideo, 0)
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("got %v, want ErrInvariantViolation", err)
	}
	snap := l.Snapshot()
	if snap.Total != 0 || snap.InUseAC[ACVideo] != 0 {
		t.Fatalf("counters not clamped at zero: %+v", snap)
	}
	if err := l.Release(ACVideo, 7); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("out of range link: got %v", err)
	}
}

func TestLedgerBounds(t *testing.T) {
	const maxLinks = 4
	l := NewLedger(LedgerConfig{
		MaxTotal: 24,
		MinAC:    [NumAC]uint32{4, 2, 4, 4},
		MinLink:  2,
		MaxLinks: maxLinks,
	})
	rng := rand.New(rand.NewSource(1))
	type slot struct {
		ac   AC
		link uint8
	}
	var held []slot
	for link := uint8(0); link < maxLinks; link++ {
		l.EnableLink(link)
	}
	for i := 0; i < 5000; i++ {
		if len(held) > 0 && rng.Intn(3) == 0 {
			j := rng.Intn(len(held))
			s := held[j]
			held[j] = held[len(held)-1]
			held = held[:len(held)-1]
			if err := l.Release(s.ac, s.link); err != nil {
				t.Fatalf("step %d: release: %v", i, err)
			}
		} else {
			s := slot{ac: AC(rng.Intn(NumAC)), link: uint8(rng.Intn(maxLinks))}
			if l.Admit(s.ac, s.link) {
				held = append(held, s)
			}
		}
		snap := l.Snapshot()
		var sumAC, sumLink uint32
		for ac := range snap.InUseAC {
			sumAC += snap.InUseAC[ac]
			if snap.InUseAC[ac] > snap.EffectiveAC[ac] {
				t.Fatalf("step %d: AC %s in use %d above effective %d", i, AC(ac), snap.InUseAC[ac], snap.EffectiveAC[ac])
			}
		}
		for link := range snap.InUseLink {
			sumLink += snap.InUseLink[link]
			if snap.InUseLink[link] > snap.EffectiveLink[link] {
				t.Fatalf("step %d: link %d in use %d above effective %d", i, link, snap.InUseLink[link], snap.EffectiveLink[link])
			}
		}
		if snap.Total > snap.MaxTotal || sumAC != snap.Total || sumLink != snap.Total || int(snap.Total) != len(held) {
			t.Fatalf("step %d: inconsistent totals %+v held=%d", i, snap, len(held))
		}
	}
}
