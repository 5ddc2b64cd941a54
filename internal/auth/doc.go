// Package auth guards the gateway's API endpoints with HS256 JWTs signed
// by the configured api_secret. It verifies tokens only; there is no
// principal registry, so a valid signature and subject claim is the whole
// identity. When no secret is configured the middleware is not installed
// and the API is open.
package auth
