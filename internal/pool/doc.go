// Package pool implements a bounded worker pool with lazy worker activation
// and a blocking join.
//
// A Pool owns an arena of Capacity worker slots indexed 0..Capacity-1. Slots
// are activated on demand and, once active, are reused until the pool is
// closed. Scheduled tasks enter a FIFO queue; a dispatcher goroutine hands the
// head of the queue to an idle active slot when one exists, activates a new
// slot when none is idle and capacity allows, and otherwise leaves the task
// queued until a slot frees up. Wait blocks until every scheduled task has
// finished.
//
// Lifecycle: a pool accepts Schedule calls until Close. Wait may be called any
// number of times; each call returns once the outstanding count (scheduled
// minus finished) is zero, so a pool can be reused after a Wait returns. Close
// drains outstanding work, then releases the dispatcher and every activated
// worker. Always Close a pool, typically with defer.
package pool
