// Package resource provides the remote resource view model used by fundsavy screens.
//
// A Resource owns the lifecycle of one asynchronously retrieved value that is
// identified by a comparable key:
//
//   - Idle, Loading, Success and Failure states, exactly one active at a time
//   - Re-fetching when the observed key changes (value equality)
//   - Discarding results that arrive after their key was superseded
//   - Optional timeout, retries inside a single Loading phase, and callbacks
//   - Pattern matching for rendering
//
// Basic Usage:
//
//	group := resource.New[string, Group](fetcher).Timeout(10 * time.Second)
//	defer group.Close()
//
//	group.Observe("itemA")
//	snap, _ := group.Wait(ctx)
//
//	view := resource.Match(snap,
//	    resource.OnLoading[Group](func() View { return Spinner() }),
//	    resource.OnFailure[Group](func(err error) View { return ErrorPanel(err) }),
//	    resource.OnSuccess(func(g Group) View { return Header(g) }),
//	)
package resource
