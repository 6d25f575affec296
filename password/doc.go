// Package password hashes and verifies account passwords with Argon2id and
// checks candidate passwords against the account password policy.
//
// Hashes are stored as PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// A hash produced with weaker parameters than the current [Config] reports
// [Hasher.NeedsUpgrade] so the engine can re-hash after the next successful
// sign-in. Plaintext passwords are never logged or stored by this package.
package password
