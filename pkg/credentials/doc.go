// Package credentials manages the identities of each tenant.
//
// Credentials are stored as documents of the reserved credentials type. A
// credential holds an argon2id password hash, a password fingerprint and the
// access tokens issued by Login. Tokens are only kept as SHA-256 hashes and
// each one records the fingerprint in force when it was issued, so rotating
// the fingerprint on a password change invalidates every outstanding token.
//
// Effective status is derived on each request from the enabled flag and the
// optional enable-after and disable-after timestamps. Repeated bad passwords
// clear the enabled flag once the tenant's maximumInvalidChallenges is
// reached within the reset window.
//
// Superdog credentials live in the root tenant and authenticate against any
// tenant.
package credentials
