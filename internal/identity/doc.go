// Package identity acquires bearer tokens for the remote agent service
// via the OAuth2 client-credentials flow, reusing a cached token while it
// keeps at least a 60-second freshness margin.
package identity
