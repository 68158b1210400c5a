// Package auth issues and verifies the operator tokens that guard the
// control routes of the HTTP API.
//
// Tokens are HS256 JWTs signed with security.jwt.secret. Each carries the
// operator name as subject, a role and a random ID. There is no user
// store: tokens are minted on the command line with
//
//	mobaflow -config config.yaml -issue-token alice
//
// and verified by signature and expiry only.
package auth
