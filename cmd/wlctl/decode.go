package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soypat/wl12xx/mbox"
)

func newDecodeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "decode <hex record>...",
		Short: "Decode event mailbox records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []decodedRecord
			for i, arg := range args {
				b, err := parseHex(arg)
				if err != nil {
					return fmt.Errorf("record %d: %w", i+1, err)
				}
				rec, err := mbox.DecodeRecord(b)
				if err != nil {
					return fmt.Errorf("record %d: %w", i+1, err)
				}
				out = append(out, newDecodedRecord(&rec))
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			for _, d := range out {
				if err := d.writeText(cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

type decodedRecord struct {
	Vector  uint32       `json:"vector"`
	Mask    uint32       `json:"mask"`
	Events  []string     `json:"events"`
	Payload mbox.Payload `json:"payload"`
}

func newDecodedRecord(rec *mbox.Record) decodedRecord {
	d := rec.Decoded()
	out := decodedRecord{
		Vector:  uint32(rec.EventsVector),
		Mask:    uint32(rec.EventsMask),
		Events:  []string{},
		Payload: d.Payload,
	}
	for k := range d.Events.Kinds() {
		out.Events = append(out.Events, k.String())
	}
	return out
}

func (d decodedRecord) writeText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "vector=%#08x mask=%#08x events={%s}\n", d.Vector, d.Mask, strings.Join(d.Events, ","))
	if err != nil {
		return err
	}
	p := d.Payload
	_, err = fmt.Fprintf(w, "  scan_status=%d sched_scan_status=%d soft_gemini=%v rssi=%v role=%d rx_ba_allowed=%v tx_retry=%#04x aging=%#04x cs_status=%d\n",
		p.ScanStatus, p.SchedScanStatus, p.SoftGeminiEnable, p.RSSIMetric, p.RoleID, p.RxBAAllowed, p.TxRetryExceeded, p.AgingStatus, p.ChannelSwitchStatus)
	return err
}

// parseHex decodes a hex string, ignoring whitespace, colons and a 0x prefix.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', ':', '-':
			return -1
		}
		return r
	}, s)
	return hex.DecodeString(s)
}
