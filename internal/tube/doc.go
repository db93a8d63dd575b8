// Package tube implements the task lifecycle engine for a single named
// queue: a FIFO ready queue, a time-ordered wake index that promotes
// delayed tasks, a time-ordered expiry index that retires dead tasks, and
// a FIFO waiter list for blocked take calls.
//
// All mutations on one tube are serialized under a single mutex. Every
// operation first sweeps due promotions and expiries, so an expired task
// is never observed as ready or taken. Mutations are mirrored to a Pebble
// journal so tasks survive a restart; the in-memory structures remain
// authoritative.
package tube
