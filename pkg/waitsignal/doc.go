// Package waitsignal provides a condition primitive with queued wakes.
//
// Unlike sync.Cond, a SignalOne that arrives while nobody is waiting is not
// lost: it is kept pending and satisfies the next Wait. Two policies control
// how pending signals accumulate:
//
//   - Queue counts every signal; each pending signal satisfies one Wait.
//   - LatestOnly collapses pending signals to at most one.
//
// SignalAll wakes every goroutine currently waiting and discards anything
// pending; it does not affect later waiters.
package waitsignal
