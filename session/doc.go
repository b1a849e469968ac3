// Package session provides Redis-backed multi-device session persistence.
//
// All sessions of one user live in a single Redis hash keyed by user id;
// each hash field maps a session id to a JSON [Record]. The collection
// carries one shared TTL that is refreshed on every write, so an account
// that keeps signing in never loses its session inventory while a dormant
// account's inventory expires as a unit.
//
// This package owns the [Store] (Redis operations) and the [Record] model.
// It does NOT interpret JWT tokens, evaluate permissions, or enforce
// authentication policy.
package session
