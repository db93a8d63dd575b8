// Package engine owns the tube registry: it creates tubes on first
// reference, enforces naming and admission policy, reloads journaled
// tubes at startup, and runs the background sweeper that promotes and
// expires tasks across all tubes.
package engine
