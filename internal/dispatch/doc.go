// Package dispatch turns a stream of raw search-field edits into an ordered
// stream of search outcomes.
//
// A Dispatcher owns one search field's query state. Every edit resets a
// debounce timer; when the timer expires without being reset the settled
// text is submitted to a Transport, unless it equals the text that was last
// submitted. Each submission gets the next sequence number, and a response is
// delivered to the Consumer only if its sequence is still the one in flight.
//
// Key features:
//   - Debounced submission (DebounceInterval, default 200ms)
//   - Sequence gating: a slow early response never overwrites a later one
//   - Superseded calls have their context cancelled; correctness does not depend on it
//   - Optional empty-query suppression
//   - Optional bounded retry with exponential backoff, abandoned on supersession
//   - Refresh to resubmit the current text after the underlying data changed
//   - WaitIdle to block until every earlier edit has settled and been answered
//
// Concurrency:
//   - All state is owned by the goroutine running Run. Timer callbacks and
//     transport completions post messages into its inbox.
//   - Consumer callbacks run on that goroutine, in increasing sequence order.
//     They must not block.
//
// Error handling:
//   - Transport failure → Consumer.OnError with a *TransportError
//   - Stale response → discarded, debug log, Stats.Stale incremented
//   - Negative durations or attempts → ErrMalformedConfig from New
package dispatch
