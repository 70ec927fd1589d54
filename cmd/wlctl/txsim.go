package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"github.com/soypat/seqs"
	"github.com/spf13/cobra"

	"github.com/soypat/wl12xx"
	"github.com/soypat/wl12xx/txdata"
)

func newTxsimCmd(a *app) *cobra.Command {
	var (
		opts   simOptions
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "txsim",
		Short: "Simulate traffic through the tx queueing engine",
		Long: `Txsim submits packets round-robin over a set of links and priorities,
completes every packet the simulated device accepts and prints the
resulting queue statistics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := a.file.Core()
			if err != nil {
				return err
			}
			cfg.Logger = a.logger
			res, err := simulate(cfg, opts)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			return res.writeTable(cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&opts.links, "links", 2, "number of data links besides the system link")
	cmd.Flags().IntVar(&opts.packets, "packets", 100, "packets submitted per link")
	cmd.Flags().IntSliceVar(&opts.tids, "tid", []int{0}, "802.1d priorities packets are spread over")
	cmd.Flags().IntVar(&opts.busyEvery, "busy-every", 0, "make every nth transmit report a busy device")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print statistics as JSON")
	return cmd
}

type simOptions struct {
	links     int
	packets   int
	tids      []int
	busyEvery int
}

type simResult struct {
	Submitted int          `json:"submitted"`
	Rejected  int          `json:"rejected"`
	Sent      int          `json:"sent"`
	Stats     txdata.Stats `json:"stats"`
}

// simSink accepts packets, reporting busy every busyEvery calls.
type simSink struct {
	mu        sync.Mutex
	calls     int
	busyEvery int
	sent      int
	last      seqs.Value
}

func (s *simSink) Transmit(pkt *txdata.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.busyEvery > 0 && s.calls%s.busyEvery == 0 {
		return wl12xx.ErrTxBusy
	}
	s.sent++
	s.last = pkt.Seq
	return nil
}

func (s *simSink) lastSeq() (seqs.Value, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.sent
}

func simulate(cfg wl12xx.Config, opts simOptions) (res simResult, err error) {
	if opts.links <= 0 || len(opts.tids) == 0 {
		return res, errors.New("txsim: need at least one link and one priority")
	}
	sink := &simSink{busyEvery: opts.busyEvery}
	cfg.Sink = sink
	core := wl12xx.New(cfg)
	defer core.Queues().Pacer().Stop()

	links := make([]uint8, 0, opts.links)
	for l := 0; len(links) < opts.links; l++ {
		if l >= cfg.MaxLinks {
			return res, fmt.Errorf("txsim: %d links exceed the maximum of %d", opts.links, cfg.MaxLinks-1)
		}
		if uint8(l) == cfg.SystemLink {
			continue
		}
		if err := core.Queues().EnableLink(uint8(l), false); err != nil {
			return res, err
		}
		links = append(links, uint8(l))
	}
	complete := func() {
		if seq, sent := sink.lastSeq(); sent > 0 {
			core.TxComplete(seq)
		}
	}
	for i := 0; i < opts.packets; i++ {
		tid := opts.tids[i%len(opts.tids)]
		if tid < 0 || tid > 7 {
			return res, fmt.Errorf("txsim: priority %d out of range", tid)
		}
		for _, link := range links {
			res.Submitted++
			if err := core.Submit(link, uint8(tid), nil); err != nil {
				res.Rejected++
			}
		}
		complete()
	}
	// Drain what is left, bounded in case the device stays busy.
	for i := 0; core.Queues().Len() > 0 && i < res.Submitted; i++ {
		core.TxPass()
		complete()
	}
	_, res.Sent = sink.lastSeq()
	res.Stats = core.Stats()
	return res, nil
}

func (r simResult) writeTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "submitted\t%d\nrejected\t%d\nsent\t%d\npace timeouts\t%d\n\n",
		r.Submitted, r.Rejected, r.Sent, r.Stats.PaceTimeouts)
	fmt.Fprintln(tw, "LINK\tAC\tDEPTH\tENQ\tDEQ\tREQ\tTX\tDROP")
	for _, q := range r.Stats.Queues {
		if q.Enqueued == 0 && q.Depth == 0 {
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n", q.Link, q.AC, q.Depth,
			q.Enqueued, q.Dequeued, q.Requeued, q.Transmitted, q.Dropped)
	}
	return tw.Flush()
}
