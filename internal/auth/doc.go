// Package auth implements the local authentication core: a nonce-challenge
// login protocol, a sliding-window brute-force lockout policy, and the
// short-lived session tokens that bridge the stateless HTTP API to the
// server-side session store.
//
// The login flow is:
//
//	POST /auth/login/nonce  -> short-lived nonce binding the username
//	POST /auth/login        -> nonce + password, returns session token + user
//	GET  /auth/logout       -> removes the session behind the token
//
// Account lookup and password comparison are injected capabilities
// (AccountStore, PasswordComparer), so the authenticator can be exercised
// against test doubles without a database.
package auth
