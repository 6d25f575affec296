// Package jwt mints and verifies the HS256 bearer tokens used by the JSON
// API. Verification pins the algorithm and checks issuer, audience,
// signature and expiry with zero clock skew. [Manager.ParseExpired] performs
// the same checks except expiry, which is what the refresh exchange needs.
package jwt
