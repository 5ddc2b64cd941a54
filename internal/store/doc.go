// Package store persists the gateway's run ledger: every send is recorded
// before the remote append happens and its outcome attached once the run
// settles. SQLiteStore is the production implementation; MockRunLog backs
// tests and NopRunLog serves deployments that disable persistence.
package store
