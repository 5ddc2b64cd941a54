// Package foundry is the HTTP client for the remote agent service:
// threads, messages, runs, and agent lookups. It authenticates every
// request with a bearer token from an injected TokenSource and performs
// no retries of its own.
package foundry
