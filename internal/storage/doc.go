// Package storage is the persistence boundary around the scheduling engine.
//
// The engine itself never touches storage: the runner snapshots one user's
// tasks, settings, and busy intervals from a Store, invokes the engine, and
// writes the placements back. This package also owns the documented two-phase
// re-run contract: ResetSchedules clears schedule fields of unlocked tasks
// before a full pass, SavePlacements commits the engine's output after.
package storage
