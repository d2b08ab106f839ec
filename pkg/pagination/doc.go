// Package pagination reassembles token-paginated AWS results into one lazy sequence.
//
// An operation such as Athena GetQueryResults returns at most one page per
// call together with a NextToken. A Paginator wraps the input of the first
// call and the client that performs it; iterating it walks every page:
//
//	p := pagination.New[*athena.GetQueryResultsInput, *athena.GetQueryResultsOutput, athena.Row](
//		client, input, pagination.WithOperation("athena.GetQueryResults"))
//
//	for row, err := range p.Items(ctx) {
//		if err != nil {
//			return err // rows already seen stay valid
//		}
//		process(row)
//	}
//
// The traversal:
//   - Fetches a page at most once (Page, NextToken and Materialize are memoized)
//   - Starts the fetch of page N+1 before yielding the first item of page N
//   - Keeps exactly one prefetch in flight
//   - Preserves page order and server row order
//   - Reports a failing page after the items of all earlier pages
//   - Cancels an unconsumed prefetch when the consumer stops early
//
// Cursor exposes the same traversal as an explicit Next/Err/Close iterator,
// and CollectAll drains many independent paginators on a worker pool.
package pagination
