// Package scheduler decides when refreshes run and serves the current snapshot
// to readers.
//
// Two modes satisfy the same read contract:
//   - Push runs a refresh at start and then on a fixed interval in the
//     background. Reads only load the store, so read latency is constant and
//     never includes upstream work.
//   - PullThrough refreshes lazily: the first read in each interval-wide time
//     bucket triggers a refresh and waits for it; later reads in the bucket are
//     served from the store. Idle periods cost nothing, but that first read pays
//     the full fetch and parse latency.
//
// In both modes a failed refresh leaves the last good snapshot visible.
package scheduler
