// Package freshness provides a single-slot value cache with a freshness
// margin: a cached value is reused only while it has more than the
// requested margin of validity left.
package freshness
