// Package generator produces a synthetic sample stream for the liveplot
// relay: one comma-separated line of waveform values per period.
//
// The default columns, for x advancing by Step each line, are:
//
//	sin x, cos x, cos(sin x²), sin(exp 2x)
//
// Generator.Run waits Delay, then writes a line, then one more every Period
// until ctx is cancelled, Count lines were written, or the writer fails
// (typically a broken pipe once the relay exits).
package generator
