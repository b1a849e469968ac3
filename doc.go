// Package authengine implements the account and session lifecycle behind a
// cookie-based identity service: credential sign-up and sign-in, JWT
// access/refresh token issuance, multi-device session tracking, refresh
// rotation with replay detection, and rate-limited email confirmation and
// password reset challenges.
//
// The [Engine] is the single entry point. Every operation takes the caller's
// [Principal], resolved once per request by [Engine.ResolvePrincipal], and is
// gated by permission tags first and account state second. Persistence is
// split across two collaborators the caller supplies: a [UserRepository] for
// durable account records and a Redis client for everything ephemeral
// (sessions, token blacklist, confirmation codes, rate counters).
package authengine
