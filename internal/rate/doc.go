// Package rate provides Redis-backed fixed-window counters that throttle
// credential guessing and refresh storms.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - login_fail: failed logins per identifier
//   - login_fail_ip: failed logins per source IP
//   - refresh_rate: refresh calls per session
package rate
