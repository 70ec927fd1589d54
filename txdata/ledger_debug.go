//go:build wldebug

package txdata

// debugLedger turns accounting invariant violations into panics.
const debugLedger = true
