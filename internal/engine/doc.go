// Package engine implements the auto-scheduling core: given one user's tasks,
// settings, and busy calendar time, it assigns each schedulable task a concrete
// start/end slot and a placement quality score.
//
// The engine is a pure, synchronous function of its inputs:
//   - no I/O, no persistence, no clocks beyond the caller-supplied reference time
//   - one run mutates only its own TimeWindowIndex, so runs for different users
//     may execute concurrently
//   - a failure to place one task is data (nil schedule fields), never an error
//
// Callers are expected to snapshot tasks/settings/busy intervals beforehand and
// to persist the returned placements themselves.
package engine
