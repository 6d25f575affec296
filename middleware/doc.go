// Package middleware adapts the shopauth engine to net/http.
//
// # Guards
//
//   - [RequireBearer] validates an Authorization: Bearer access token.
//   - [RequireSession] resolves the session cookie and checks its security stamp.
//   - [RequirePolicy] evaluates an authorization policy against the principal
//     placed in the context by either guard.
//
// [CORS] answers browser preflights for an origin allow-list.
//
// [ClientInfo] records the caller's IP and User-Agent for throttling and
// audit records.
//
// The guards delegate every decision to the engine; they never parse tokens
// or touch Redis themselves.
package middleware
