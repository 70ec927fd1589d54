// package txdata implements the transmit data path of the wl12xx driver:
// per-link, per-access-category packet queues, the packet resource ledger
// shared by all queues, send pacing and the hardware descriptor window.
package txdata

import "golang.org/x/exp/constraints"

// AC is an access category: the traffic priority class used for queue separation.
type AC uint8

// Access categories in queue index order.
const (
	ACBestEffort AC = iota
	ACBackground
	ACVideo
	ACVoice
	NumAC = 4
)

func (ac AC) String() (s string) {
	switch ac {
	case ACBestEffort:
		s = "BE"
	case ACBackground:
		s = "BK"
	case ACVideo:
		s = "VI"
	case ACVoice:
		s = "VO"
	default:
		s = "AC?"
	}
	return s
}

// ParseAC parses the short access category names returned by [AC.String].
func ParseAC(s string) (AC, bool) {
	for ac := AC(0); ac < NumAC; ac++ {
		if ac.String() == s {
			return ac, true
		}
	}
	return 0, false
}

// MaxTID is the largest 802.1d priority tag.
const MaxTID = 7

// tidToAC maps 802.1d priority tags to queues.
var tidToAC = [MaxTID + 1]AC{
	0: ACBestEffort,
	1: ACBackground,
	2: ACBackground,
	3: ACBestEffort,
	4: ACVideo,
	5: ACVideo,
	6: ACVoice,
	7: ACVoice,
}

// Classify returns the access category of the 802.1d priority tag.
// ok is false for tags above MaxTID, which are classified as best effort.
func Classify(tid uint8) (ac AC, ok bool) {
	if tid > MaxTID {
		return ACBestEffort, false
	}
	return tidToAC[tid], true
}

// satsub returns a-b clamped at zero.
func satsub[T constraints.Unsigned](a, b T) T {
	if b > a {
		return 0
	}
	return a - b
}

func sum[T constraints.Integer](vals []T) (s T) {
	for _, v := range vals {
		s += v
	}
	return s
}
