// Package store provides SQLite-backed durable storage for compiled program
// binaries and the build journal.
//
// Tables:
//   - binaries: exported per-device binaries keyed by (source_digest, device_id).
//     Writes are upserts; the newest binary for a key wins.
//   - build_attempts: append-only journal of every per-device build, compile
//     and link outcome.
//
// Ordering uses seq INTEGER (logical clock), never timestamps; every query
// orders by seq so results are deterministic.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
