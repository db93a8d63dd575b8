// Package pebblestore wraps a Pebble database with the fsync policy and
// small helpers the deque journal needs: point reads, atomic batches, and
// prefix iteration.
package pebblestore
