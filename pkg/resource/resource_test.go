package resource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type item struct {
	ID   string
	Name string
}

type outcome struct {
	data item
	err  error
}

// controlledFetcher blocks each fetch until the test resolves its key.
type controlledFetcher struct {
	mu        sync.Mutex
	calls     map[string]int
	gates     map[string]chan outcome
	ignoreCtx bool
}

func newControlledFetcher() *controlledFetcher {
	return &controlledFetcher{
		calls: make(map[string]int),
		gates: make(map[string]chan outcome),
	}
}

func (c *controlledFetcher) gate(key string) chan outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.gates[key]
	if !ok {
		ch = make(chan outcome, 1)
		c.gates[key] = ch
	}
	return ch
}

func (c *controlledFetcher) Fetch(ctx context.Context, key string) (item, error) {
	c.mu.Lock()
	c.calls[key]++
	c.mu.Unlock()

	ch := c.gate(key)
	if c.ignoreCtx {
		o := <-ch
		return o.data, o.err
	}
	select {
	case o := <-ch:
		return o.data, o.err
	case <-ctx.Done():
		return item{}, ctx.Err()
	}
}

func (c *controlledFetcher) resolve(key string, o outcome) {
	c.gate(key) <- o
}

func (c *controlledFetcher) count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[key]
}

func waitSettled(t *testing.T, r *Resource[string, item]) Snapshot[string, item] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := r.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	return snap
}

func TestNewResourceIsIdle(t *testing.T) {
	r := New[string, item](newControlledFetcher())
	defer r.Close()

	if r.State() != Idle {
		t.Errorf("Expected Idle, got %v", r.State())
	}
	if _, ok := r.Key(); ok {
		t.Error("Expected no key before Observe")
	}
}

func TestObserveReturnsLoadingImmediately(t *testing.T) {
	f := newControlledFetcher()
	r := New[string, item](f)
	defer r.Close()

	snap := r.Observe("itemA")
	if snap.State != Loading {
		t.Fatalf("Expected Loading, got %v", snap.State)
	}
	if snap.Key != "itemA" {
		t.Errorf("Expected key itemA, got %q", snap.Key)
	}
	if snap.Data != (item{}) {
		t.Errorf("Loading snapshot must not carry data, got %+v", snap.Data)
	}
}

func TestObserveSuccess(t *testing.T) {
	f := newControlledFetcher()
	r := New[string, item](f)
	defer r.Close()

	r.Observe("itemA")
	f.resolve("itemA", outcome{data: item{ID: "itemA", Name: "Widget"}})

	snap := waitSettled(t, r)
	if snap.State != Success {
		t.Fatalf("Expected Success, got %v", snap.State)
	}
	if snap.Data != (item{ID: "itemA", Name: "Widget"}) {
		t.Errorf("Unexpected data: %+v", snap.Data)
	}
	if snap.Err != nil {
		t.Errorf("Expected no error, got %v", snap.Err)
	}
}

func TestObserveFailure(t *testing.T) {
	f := newControlledFetcher()
	r := New[string, item](f)
	defer r.Close()

	r.Observe("missing")
	f.resolve("missing", outcome{err: errors.New("not found")})

	snap := waitSettled(t, r)
	if snap.State != Failure {
		t.Fatalf("Expected Failure, got %v", snap.State)
	}
	if snap.Message() != "not found" {
		t.Errorf("Expected message 'not found', got %q", snap.Message())
	}
	if snap.Data != (item{}) {
		t.Errorf("Failure snapshot must not carry data, got %+v", snap.Data)
	}
}

func TestObserveSameKeyDoesNotRefetch(t *testing.T) {
	f := newControlledFetcher()
	r := New[string, item](f)
	defer r.Close()

	r.Observe("itemA")
	r.Observe("itemA")
	f.resolve("itemA", outcome{data: item{ID: "itemA"}})
	waitSettled(t, r)

	snap := r.Observe("itemA")
	if snap.State != Success {
		t.Errorf("Expected Success on repeated observe, got %v", snap.State)
	}
	if n := f.count("itemA"); n != 1 {
		t.Errorf("Expected 1 fetch, got %d", n)
	}
}

func TestFailureDoesNotReenterLoading(t *testing.T) {
	f := newControlledFetcher()
	r := New[string, item](f)
	defer r.Close()

	r.Observe("missing")
	f.resolve("missing", outcome{err: errors.New("not found")})
	waitSettled(t, r)

	if snap := r.Observe("missing"); snap.State != Failure {
		t.Errorf("Expected Failure to stick, got %v", snap.State)
	}
	time.Sleep(20 * time.Millisecond)
	if r.State() != Failure {
		t.Errorf("Expected Failure after idle wait, got %v", r.State())
	}
	if n := f.count("missing"); n != 1 {
		t.Errorf("Expected 1 fetch, got %d", n)
	}
}

func TestKeyChangeDiscardsStaleResult(t *testing.T) {
	f := newControlledFetcher()
	f.ignoreCtx = true

	discarded := make(chan string, 1)
	r := New[string, item](f).OnDiscard(func(key string) {
		discarded <- key
	})
	defer r.Close()

	r.Observe("itemA")
	snap := r.Observe("itemB")
	if snap.State != Loading || snap.Key != "itemB" {
		t.Fatalf("Expected Loading for itemB, got %v %q", snap.State, snap.Key)
	}

	f.resolve("itemA", outcome{data: item{ID: "itemA", Name: "Widget"}})
	select {
	case key := <-discarded:
		if key != "itemA" {
			t.Errorf("Expected itemA to be discarded, got %q", key)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for stale result to be discarded")
	}

	if cur := r.Snapshot(); cur.State != Loading || cur.Key != "itemB" {
		t.Fatalf("Stale result leaked: state=%v key=%q data=%+v", cur.State, cur.Key, cur.Data)
	}

	f.resolve("itemB", outcome{data: item{ID: "itemB", Name: "Gadget"}})
	final := waitSettled(t, r)
	if final.Key != "itemB" || final.Data.Name != "Gadget" {
		t.Errorf("Expected itemB result, got key=%q data=%+v", final.Key, final.Data)
	}
}

func TestKeyChangeCancelsPreviousContext(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	r := NewFunc(func(ctx context.Context, key string) (item, error) {
		if key == "itemA" {
			close(started)
			<-ctx.Done()
			close(cancelled)
			return item{}, ctx.Err()
		}
		return item{ID: key}, nil
	})
	defer r.Close()

	r.Observe("itemA")
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for itemA fetch to start")
	}
	r.Observe("itemB")

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("Expected superseded fetch context to be cancelled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := r.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if snap.State != Success || snap.Key != "itemB" {
		t.Errorf("Expected Success for itemB, got %v %q", snap.State, snap.Key)
	}
}

func TestSubscribeSeesOrderedTransitions(t *testing.T) {
	f := newControlledFetcher()
	r := New[string, item](f)
	defer r.Close()

	var mu sync.Mutex
	var states []State
	done := make(chan struct{})

	unsubscribe := r.Subscribe(func(s Snapshot[string, item]) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
		if s.State == Success {
			close(done)
		}
	})
	defer unsubscribe()

	r.Observe("itemA")
	f.resolve("itemA", outcome{data: item{ID: "itemA"}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for Success notification")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{Idle, Loading, Success}
	if len(states) != len(want) {
		t.Fatalf("Expected %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("Transition %d: expected %v, got %v", i, want[i], states[i])
		}
	}
}

func TestTimeoutMapsToFailure(t *testing.T) {
	r := NewFunc(func(ctx context.Context, key string) (item, error) {
		<-ctx.Done()
		return item{}, ctx.Err()
	}).Timeout(20 * time.Millisecond)
	defer r.Close()

	r.Observe("slow")
	snap := waitSettled(t, r)

	if snap.State != Failure {
		t.Fatalf("Expected Failure, got %v", snap.State)
	}
	if !errors.Is(snap.Err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", snap.Err)
	}
	if !strings.Contains(snap.Message(), "request timed out") {
		t.Errorf("Expected timeout message, got %q", snap.Message())
	}
}

func TestTimeoutWithFetcherIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	r := NewFunc(func(ctx context.Context, key string) (item, error) {
		<-release
		return item{ID: key}, nil
	}).Timeout(20 * time.Millisecond)
	defer r.Close()

	start := time.Now()
	r.Observe("slow")
	snap := waitSettled(t, r)

	if snap.State != Failure {
		t.Fatalf("Expected Failure, got %v (data=%+v)", snap.State, snap.Data)
	}
	if !errors.Is(snap.Err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", snap.Err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Expected failure near the deadline, took %v", elapsed)
	}
}

func TestPanicBecomesFailure(t *testing.T) {
	r := NewFunc(func(ctx context.Context, key string) (item, error) {
		panic("boom")
	})
	defer r.Close()

	r.Observe("itemA")
	snap := waitSettled(t, r)

	var pe *PanicError
	if !errors.As(snap.Err, &pe) {
		t.Fatalf("Expected PanicError, got %v", snap.Err)
	}
	if pe.Value != "boom" {
		t.Errorf("Expected panic value 'boom', got %v", pe.Value)
	}
}

func TestResourceRetryOnError(t *testing.T) {
	var attempts atomic.Int32
	done := make(chan struct{})

	r := NewFunc(func(ctx context.Context, key string) (item, error) {
		if attempts.Add(1) < 3 {
			return item{}, errors.New("temporary error")
		}
		return item{ID: key}, nil
	}).
		RetryOnError(3, 5*time.Millisecond).
		OnSuccess(func(item) {
			close(done)
		})
	defer r.Close()

	var sawFailure atomic.Bool
	unsubscribe := r.Subscribe(func(s Snapshot[string, item]) {
		if s.State == Failure {
			sawFailure.Store(true)
		}
	})
	defer unsubscribe()

	r.Observe("itemA")

	select {
	case <-done:
		if n := attempts.Load(); n != 3 {
			t.Errorf("Expected 3 attempts, got %d", n)
		}
		if r.Data().ID != "itemA" {
			t.Errorf("Expected itemA, got %+v", r.Data())
		}
		if sawFailure.Load() {
			t.Error("Retries must stay inside Loading")
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for retry success")
	}
}

func TestResourceRetryOnErrorExhausted(t *testing.T) {
	var attempts atomic.Int32
	done := make(chan error, 1)

	r := NewFunc(func(ctx context.Context, key string) (item, error) {
		attempts.Add(1)
		return item{}, errors.New("permanent error")
	}).
		RetryOnError(2, 5*time.Millisecond).
		OnError(func(err error) {
			done <- err
		})
	defer r.Close()

	r.Observe("itemA")

	select {
	case err := <-done:
		// 1 + 2 retries
		if n := attempts.Load(); n != 3 {
			t.Errorf("Expected 3 attempts, got %d", n)
		}
		if err.Error() != "permanent error" {
			t.Errorf("Unexpected error: %v", err)
		}
		if r.State() != Failure {
			t.Errorf("Expected Failure, got %v", r.State())
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for retry exhaustion")
	}
}

func TestReloadStartsNewCycle(t *testing.T) {
	f := newControlledFetcher()
	r := New[string, item](f)
	defer r.Close()

	if snap := r.Reload(); snap.State != Idle {
		t.Errorf("Reload on Idle should be a no-op, got %v", snap.State)
	}

	first := r.Observe("itemA")
	f.resolve("itemA", outcome{err: errors.New("unavailable")})
	waitSettled(t, r)

	second := r.Reload()
	if second.State != Loading {
		t.Fatalf("Expected Loading after Reload, got %v", second.State)
	}
	if second.Generation <= first.Generation {
		t.Errorf("Expected a newer generation, got %d after %d", second.Generation, first.Generation)
	}

	f.resolve("itemA", outcome{data: item{ID: "itemA"}})
	if snap := waitSettled(t, r); snap.State != Success {
		t.Errorf("Expected Success after reload, got %v", snap.State)
	}
	if n := f.count("itemA"); n != 2 {
		t.Errorf("Expected 2 fetches, got %d", n)
	}
}

func TestCloseDiscardsInFlightResult(t *testing.T) {
	f := newControlledFetcher()
	f.ignoreCtx = true

	discarded := make(chan string, 1)
	r := New[string, item](f).OnDiscard(func(key string) {
		discarded <- key
	})

	r.Observe("itemA")
	r.Close()
	r.Close()

	f.resolve("itemA", outcome{data: item{ID: "itemA"}})

	select {
	case <-discarded:
	case <-time.After(time.Second):
		t.Fatal("Expected result after Close to be discarded")
	}

	if r.State() == Success {
		t.Error("Closed resource must not apply late results")
	}
	if snap := r.Observe("itemB"); snap.Key == "itemB" {
		t.Error("Closed resource must not start new fetches")
	}
	if _, err := r.Wait(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestWatchStreamsUntilCancelled(t *testing.T) {
	f := newControlledFetcher()
	r := New[string, item](f)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := r.Watch(ctx)

	r.Observe("itemA")
	f.resolve("itemA", outcome{data: item{ID: "itemA"}})

	deadline := time.After(time.Second)
	for {
		select {
		case snap := <-ch:
			if snap.State == Success {
				cancel()
				for range ch {
				}
				return
			}
		case <-deadline:
			t.Fatal("Timeout waiting for Success on watch channel")
		}
	}
}

func TestSlowWatcherDoesNotStallOthers(t *testing.T) {
	r := NewFunc(func(ctx context.Context, key string) (item, error) {
		return item{ID: key}, nil
	})
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = r.Watch(ctx) // never read

	last := make(chan string, 64)
	unsubscribe := r.Subscribe(func(snap Snapshot[string, item]) {
		if snap.State == Success {
			last <- snap.Data.ID
		}
	})
	defer unsubscribe()

	for i := 0; i < 20; i++ {
		r.Observe(fmt.Sprintf("item%d", i))
		waitSettled(t, r)
	}

	deadline := time.After(time.Second)
	for {
		select {
		case id := <-last:
			if id == "item19" {
				return
			}
		case <-deadline:
			t.Fatal("Subscriber stalled behind an unread watcher")
		}
	}
}

func TestSubscribeSkipsStatesOlderThanCurrent(t *testing.T) {
	f := newControlledFetcher()
	r := New[string, item](f)
	defer r.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	unsubscribe := r.Subscribe(func(Snapshot[string, item]) {
		once.Do(func() {
			close(entered)
			<-release
		})
	})
	defer unsubscribe()
	<-entered

	// The notifier is busy, so both transitions stay queued.
	r.Observe("itemA")
	f.resolve("itemA", outcome{data: item{ID: "itemA"}})
	waitSettled(t, r)

	got := make(chan Snapshot[string, item], 8)
	unsubscribeLate := r.Subscribe(func(snap Snapshot[string, item]) {
		got <- snap
	})
	defer unsubscribeLate()
	close(release)

	select {
	case snap := <-got:
		if snap.State != Success {
			t.Fatalf("Expected first snapshot to be the current Success, got %v", snap.State)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for initial snapshot")
	}
	select {
	case snap := <-got:
		t.Errorf("Unexpected extra snapshot %v", snap.State)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchClosesWithResource(t *testing.T) {
	r := New[string, item](newControlledFetcher())
	ch := r.Watch(context.Background())

	<-ch // initial snapshot
	r.Close()

	select {
	case _, ok := <-ch:
		if ok {
			// drain whatever was queued before close
			for range ch {
			}
		}
	case <-time.After(time.Second):
		t.Fatal("Expected watch channel to close with the resource")
	}
}

func TestMatch(t *testing.T) {
	render := func(s Snapshot[string, item]) string {
		return Match(s,
			OnIdle[item](func() string { return "idle" }),
			OnLoading[item](func() string { return "spinner" }),
			OnFailure[item](func(err error) string { return "error: " + err.Error() }),
			OnSuccess(func(it item) string { return it.Name }),
		)
	}

	tests := []struct {
		name string
		snap Snapshot[string, item]
		want string
	}{
		{"idle", Snapshot[string, item]{}, "idle"},
		{"loading", Snapshot[string, item]{State: Loading}, "spinner"},
		{"failure", Snapshot[string, item]{State: Failure, Err: errors.New("not found")}, "error: not found"},
		{"success", Snapshot[string, item]{State: Success, Data: item{Name: "Widget"}}, "Widget"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(tt.snap); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestMatchPendingAndFallthrough(t *testing.T) {
	pending := Match(Snapshot[string, item]{State: Loading},
		OnPending[item](func() string { return "waiting" }),
	)
	if pending != "waiting" {
		t.Errorf("Expected 'waiting', got %q", pending)
	}

	none := Match(Snapshot[string, item]{State: Failure, Err: errors.New("x")},
		OnSuccess(func(it item) string { return it.Name }),
	)
	if none != "" {
		t.Errorf("Expected zero value when no handler matches, got %q", none)
	}
}

func TestDataOr(t *testing.T) {
	f := newControlledFetcher()
	r := New[string, item](f)
	defer r.Close()

	fallback := item{Name: "fallback"}
	r.Observe("itemA")
	if got := r.DataOr(fallback); got != fallback {
		t.Errorf("Expected fallback while loading, got %+v", got)
	}

	f.resolve("itemA", outcome{data: item{Name: "actual"}})
	waitSettled(t, r)
	if got := r.DataOr(fallback); got.Name != "actual" {
		t.Errorf("Expected actual data, got %+v", got)
	}
}

func TestStateString(t *testing.T) {
	if Loading.String() != "loading" || Failure.String() != "failure" {
		t.Errorf("Unexpected state names: %s %s", Loading, Failure)
	}
	if !Success.Terminal() || Loading.Terminal() {
		t.Error("Terminal misreports states")
	}
}
