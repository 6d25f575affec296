// Package shopauth is the identity and access engine of the shop back
// office: password and external sign-in with lockout, TOTP two-factor,
// cookie sessions and JWT bearer tokens with refresh, email confirmation and
// password reset, roles and authorization policies.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// shopauth is the public surface. Persistence sits behind [Store]
// (store/postgres, store/memory), mail behind [Mailer] (mail/), and the
// HTTP surface lives in httpapi/. Session and challenge encoding, sign-in
// throttling and audit dispatch live in session/ and internal/.
//
// # Security stamp
//
// Every user carries an opaque stamp that rotates on password change or
// reset, email confirmation and two-factor changes. Cookie sessions and
// purpose tokens are bound to the stamp they were issued with and stop
// working once it rotates. Access tokens are not checked against the stamp
// and live until they expire.
//
// # Per-user atomicity
//
// All read-modify-write sequences on a user (failure counting, refresh
// rotation, token consumption) run inside [Store.UpdateUser].
package shopauth
