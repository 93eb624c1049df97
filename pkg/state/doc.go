// Package state holds the process-wide editor state and the persistence
// contracts used to share it.
//
// Container[T] is the single mutable holder the editor reads from. It is
// replaced wholesale by Set and notifies subscribers after every replace, so
// observers never see a partially applied value. Concurrent writers resolve as
// last write wins.
//
// Store[T] loads, saves, and deletes one snapshot per Ref. Three backends are
// provided:
//
//	MemoryStore   - tests and single-process tools
//	RedisStore    - share links with an optional TTL
//	PostgresStore - durable share links
//
// Every Save returns a Meta carrying the snapshot ID, the ETag of the stored
// value, and the update time.
package state
