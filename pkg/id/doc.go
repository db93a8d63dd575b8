// Package id generates 128-bit, lexicographically sortable identifiers.
// The deque server uses them as consumer session tokens: sortable by
// creation time and cheap to mint under concurrency.
package id
