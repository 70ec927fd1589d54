//go:build !wldebug

package txdata

const debugLedger = false
