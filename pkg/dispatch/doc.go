// Package dispatch provides the process-wide worker pool that executes
// fetch units against the storage gateway.
//
// One pool is created at startup and shared by every request. Each request
// submits units together with its own context and delivery channel:
//
//	pool := dispatch.NewPool(gw, dispatch.DefaultConfig())
//	defer pool.Shutdown(context.Background())
//
//	results := make(chan dispatch.Result, window)
//	if err := pool.Submit(ctx, unit, results); err != nil {
//		// pool closed or ctx done
//	}
//	res := <-results
//
// The pool:
//   - Runs a fixed number of workers pulling from one shared queue
//   - Checks the request context before and after every fetch and drops
//     results of cancelled requests
//   - Recovers worker panics and reports them as a repository failure for
//     that unit only
//   - Stops each worker with a poison task after it has drained the units
//     queued ahead of it
package dispatch
