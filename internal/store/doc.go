// Package store provides SQLite-backed durable storage for medledger
// entities.
//
// Tables:
//   - users, doctors, patients: identity and profile rows (doctor/patient
//     are 1:1 with a user)
//   - access_requests: the grant lifecycle (PENDING → APPROVED | DENIED)
//   - records: committed clinical records with their sync status
//
// # Invariants enforced at this layer
//
// Status transitions are guarded in SQL, not in callers: the UPDATE
// statements for access requests and records match only rows still in
// PENDING state and report a conflict when zero rows were affected. A
// terminal row can therefore never transition twice, regardless of caller
// bugs or interleaving.
//
// Referential integrity is checked at write time inside the same
// transaction as the insert, so a missing doctor or patient surfaces as a
// NOT_FOUND fault rather than a raw constraint error.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity as a backstop
//
// The store is consumed only by the access gate and the commit
// orchestrator; callers outside internal/ never touch it directly.
package store
