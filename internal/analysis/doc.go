// Package analysis extracts time series from recorded frames and
// characterizes them.
//
//   - [Series] and [FrameSeries]: per-body and per-frame traces
//   - [PowerSpectrum] and [DominantFrequency]: oscillation analysis of a
//     trace, e.g. the swing period of a pendulum link
//   - [PhasePortrait]: 2D phase space plot of two traces
//   - [Crossings]: upward threshold crossings, a discrete Poincaré section
package analysis
