package txdata

import (
	"sync"

	"github.com/soypat/seqs"
)

// DefaultDescriptors is the number of firmware tx descriptors.
const DefaultDescriptors = 16

// Descriptors tracks the window of hardware tx descriptors handed to the
// firmware. Each transmitted packet takes a sequence number; the firmware
// retires descriptors cumulatively through tx-complete reports.
type Descriptors struct {
	mu   sync.Mutex
	size seqs.Size
	// next is the sequence assigned to the next packet.
	next seqs.Value
	// done is the oldest sequence not yet completed.
	done seqs.Value
}

// NewDescriptors returns a window of n descriptors starting at sequence start.
func NewDescriptors(n int, start seqs.Value) *Descriptors {
	if n <= 0 {
		n = DefaultDescriptors
	}
	return &Descriptors{size: seqs.Size(n), next: start, done: start}
}

// Acquire takes a descriptor and returns its sequence number. It returns false
// if every descriptor is in flight.
func (d *Descriptors) Acquire() (seqs.Value, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if seqs.Sizeof(d.done, d.next) >= d.size {
		return 0, false
	}
	seq := d.next
	d.next = seqs.Add(d.next, 1)
	return seq, true
}

// Cancel returns the most recently acquired descriptor when its packet was
// never handed to the device. It returns false if seq is not the last one acquired.
func (d *Descriptors) Cancel(seq seqs.Value) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next == d.done || seqs.Add(seq, 1) != d.next {
		return false
	}
	d.next = seq
	return true
}

// Complete retires every in-flight descriptor up to and including seq and
// returns how many were retired. Stale or unknown sequences retire nothing.
func (d *Descriptors) Complete(seq seqs.Value) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !seqs.InRange(seq, d.done, d.next) {
		return 0
	}
	end := seqs.Add(seq, 1)
	n := seqs.Sizeof(d.done, end)
	d.done = end
	return int(n)
}

// InFlight returns the number of descriptors owned by the firmware.
func (d *Descriptors) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int(seqs.Sizeof(d.done, d.next))
}

// Available returns the number of free descriptors.
func (d *Descriptors) Available() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int(d.size - seqs.Sizeof(d.done, d.next))
}
