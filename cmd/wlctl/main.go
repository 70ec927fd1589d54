// Command wlctl inspects and exercises the wl12xx control-plane core:
// it decodes event mailbox records, replays mailbox traces, simulates tx
// traffic and prints the effective configuration.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
