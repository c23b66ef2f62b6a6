// Package batch provides the HTTP client for the upstream batch logging API.
//
// This package manages:
//   - Starting a batch before a sorting session may enter the Running state
//   - Reporting completed items when the session finishes
//   - Connection health monitoring
//
// # Failure Semantics
//
// A failed start call aborts session activation; callers must not enter
// the Running state without a confirmed batch ID. A failed finish call is
// reported to the caller but the local session file is still written. No
// automatic retries are performed.
//
// # Usage
//
//	client := batch.NewClient(cfg.Batch)
//
//	id, err := client.Start(ctx, []int{1, 2, 3})
//	if err != nil {
//	    return err // do not enter Running
//	}
//
//	// ... session runs ...
//
//	if err := client.Finish(ctx, id, items); err != nil {
//	    logger.Error("batch finish failed", "error", err)
//	    // local session file is still written by the caller
//	}
package batch
