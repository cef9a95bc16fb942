// Package pagination drives a page sequence through a fetcher until the run
// has enough results, the engine runs dry, or too many pages fail.
//
// Pages are fetched strictly one after another: page N+1 is requested only
// after the fetch of page N has returned. The engine supplies the cursor for
// cursor-paginated searches, so there is nothing to parallelize within a run.
//
// Example usage:
//
//	ctrl := pagination.NewController(pagination.DefaultConfig())
//	stats, err := ctrl.Run(ctx, pages, fetcher.Fetch, func(raw *client.RawPage) pagination.Yield {
//		records, yield := norm.Page(raw)
//		out = append(out, records...)
//		return yield
//	})
//
// The controller:
//   - Stops once the consumer has kept Target results
//   - Stops on the first page without entries
//   - Stops when the sequence is exhausted (MaxPages or no next cursor)
//   - Skips a failed page and stops after FailureThreshold+1 failures in a row
//   - Aborts on a rejected credential
//   - Observes cancellation between pages only
package pagination
