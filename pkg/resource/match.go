package resource

// Handler renders one state of a snapshot into an R.
type Handler[T, R any] interface {
	handle(state State, data T, err error) (R, bool)
}

// Match renders the snapshot with the first handler that accepts its state.
// It returns the zero R if none does.
func Match[K comparable, T, R any](snap Snapshot[K, T], handlers ...Handler[T, R]) R {
	for _, h := range handlers {
		if out, ok := h.handle(snap.State, snap.Data, snap.Err); ok {
			return out
		}
	}
	var zero R
	return zero
}

// Match renders the current snapshot. See the package-level Match.
func (r *Resource[K, T]) Match(handlers ...Handler[T, any]) any {
	return Match(r.Snapshot(), handlers...)
}

// Handler implementations

type stateHandler[T, R any] struct {
	accept func(State) bool
	fn     func() R
}

func (h stateHandler[T, R]) handle(state State, _ T, _ error) (R, bool) {
	if h.accept(state) {
		return h.fn(), true
	}
	var zero R
	return zero, false
}

type failureHandler[T, R any] struct {
	fn func(error) R
}

func (h failureHandler[T, R]) handle(state State, _ T, err error) (R, bool) {
	if state == Failure {
		return h.fn(err), true
	}
	var zero R
	return zero, false
}

type successHandler[T, R any] struct {
	fn func(T) R
}

func (h successHandler[T, R]) handle(state State, data T, _ error) (R, bool) {
	if state == Success {
		return h.fn(data), true
	}
	var zero R
	return zero, false
}

// Constructors

// OnIdle handles the Idle state.
func OnIdle[T, R any](fn func() R) Handler[T, R] {
	return stateHandler[T, R]{accept: func(s State) bool { return s == Idle }, fn: fn}
}

// OnLoading handles the Loading state.
func OnLoading[T, R any](fn func() R) Handler[T, R] {
	return stateHandler[T, R]{accept: func(s State) bool { return s == Loading }, fn: fn}
}

// OnPending handles both Idle and Loading.
func OnPending[T, R any](fn func() R) Handler[T, R] {
	return stateHandler[T, R]{accept: func(s State) bool { return s == Idle || s == Loading }, fn: fn}
}

// OnFailure handles the Failure state.
func OnFailure[T, R any](fn func(error) R) Handler[T, R] {
	return failureHandler[T, R]{fn: fn}
}

// OnSuccess handles the Success state.
func OnSuccess[T, R any](fn func(T) R) Handler[T, R] {
	return successHandler[T, R]{fn: fn}
}
