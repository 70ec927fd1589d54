package wl12xx

import (
	"errors"
	"log/slog"

	"github.com/soypat/seqs"
)

// Submit queues a packet for transmission on link with 802.1d priority tid.
// Transmission happens on a later transmit pass, started by the send pacer.
func (c *Core) Submit(link, tid uint8, payload []byte) error {
	c.lock()
	defer c.unlock()
	_, err := c.queues.Enqueue(link, tid, payload)
	return err
}

// TxPass hands queued packets to the TxSink while hardware descriptors are
// available and returns the number of packets the device accepted.
func (c *Core) TxPass() (sent int) {
	c.lock()
	defer c.unlock()
	return c.txPass()
}

// TxComplete retires every hardware descriptor up to and including seq,
// clears the busy state of all queues and starts a transmit pass.
func (c *Core) TxComplete(seq seqs.Value) (retired int) {
	c.lock()
	defer c.unlock()
	retired = c.descs.Complete(seq)
	c.queues.ClearBusy()
	c.trace("TxComplete", slog.Uint64("seq", uint64(seq)), slog.Int("retired", retired))
	c.kickPending.Store(true)
	return retired
}

// InFlight returns the number of packets owned by the device.
func (c *Core) InFlight() int { return c.descs.InFlight() }

// Flush drops every packet queued on link and disables it.
func (c *Core) Flush(link uint8) {
	c.lock()
	defer c.unlock()
	c.flushLink(link)
}

func (c *Core) txPass() (sent int) {
	if c.sink == nil {
		return 0
	}
	for c.descs.Available() > 0 {
		pkt, ok := c.queues.Dequeue()
		if !ok {
			break
		}
		seq, _ := c.descs.Acquire()
		pkt.Seq = seq
		err := c.sink.Transmit(pkt)
		if err == nil {
			c.queues.MarkTransmitted(pkt)
			sent++
			continue
		}
		c.descs.Cancel(seq)
		if errors.Is(err, ErrTxBusy) {
			c.queues.SetBusy(pkt.Link, pkt.AC, true)
			if rqErr := c.queues.Requeue(pkt); rqErr != nil {
				c.warn("tx:requeue", slog.Int("link", int(pkt.Link)), slog.String("err", rqErr.Error()))
			}
			continue
		}
		c.queues.MarkDropped(pkt)
		c.logerr("tx:transmit", slog.Int("link", int(pkt.Link)), slog.String("ac", pkt.AC.String()), slog.String("err", err.Error()))
	}
	if sent > 0 {
		c.trace("tx:pass", slog.Int("sent", sent), slog.Int("inflight", c.descs.InFlight()))
	}
	return sent
}
