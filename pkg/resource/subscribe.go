package resource

import (
	"context"
	"sync"
)

type subscriber[K comparable, T any] struct {
	fn      func(Snapshot[K, T])
	lastSeq uint64
}

type delivery[K comparable, T any] struct {
	snap Snapshot[K, T]
	only uint64 // subscriber ID, 0 for everyone
}

// publishLocked records snap as the current state and queues it for
// subscribers. r.mu must be held, which keeps the queue in state order.
func (r *Resource[K, T]) publishLocked(snap Snapshot[K, T]) Snapshot[K, T] {
	r.seq++
	snap.seq = r.seq
	r.snap = snap

	if len(r.subs) > 0 {
		r.queue = append(r.queue, delivery[K, T]{snap: snap})
		r.signalLocked()
	}
	return snap
}

func (r *Resource[K, T]) signalLocked() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Subscribe registers fn to receive every state change, starting with the
// current snapshot. Calls happen on a single notifier goroutine, in state
// order; a subscriber never sees a snapshot older than one it already saw.
// fn may call back into the resource.
func (r *Resource[K, T]) Subscribe(fn func(Snapshot[K, T])) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return func() {}
	}

	r.nextSub++
	id := r.nextSub
	sub := &subscriber[K, T]{fn: fn}
	if r.snap.seq > 0 {
		sub.lastSeq = r.snap.seq - 1
	}
	r.subs[id] = sub
	r.queue = append(r.queue, delivery[K, T]{snap: r.snap, only: id})
	r.signalLocked()

	if !r.notifier {
		r.notifier = true
		go r.notifyLoop()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
		})
	}
}

// Watch streams snapshots on a channel until ctx is done or the resource is
// closed, at which point the channel is closed. The first value is the
// current snapshot. Each watcher buffers on its own goroutine, so a slow
// reader does not hold up other subscribers.
func (r *Resource[K, T]) Watch(ctx context.Context) <-chan Snapshot[K, T] {
	ch := make(chan Snapshot[K, T], 8)

	var (
		mu      sync.Mutex
		pending []Snapshot[K, T]
	)
	ready := make(chan struct{}, 1)

	unsubscribe := r.Subscribe(func(snap Snapshot[K, T]) {
		mu.Lock()
		pending = append(pending, snap)
		mu.Unlock()
		select {
		case ready <- struct{}{}:
		default:
		}
	})

	go func() {
		defer close(ch)
		defer unsubscribe()
		for {
			mu.Lock()
			batch := pending
			pending = nil
			mu.Unlock()

			for _, snap := range batch {
				select {
				case ch <- snap:
				case <-ctx.Done():
					return
				case <-r.done:
					return
				}
			}

			select {
			case <-ready:
			case <-ctx.Done():
				return
			case <-r.done:
				return
			}
		}
	}()

	return ch
}

func (r *Resource[K, T]) notifyLoop() {
	for {
		select {
		case <-r.wake:
		case <-r.done:
			return
		}

		r.mu.Lock()
		batch := r.queue
		r.queue = nil
		subs := make(map[uint64]*subscriber[K, T], len(r.subs))
		for id, s := range r.subs {
			subs[id] = s
		}
		r.mu.Unlock()

		for _, d := range batch {
			if d.only != 0 {
				if s, ok := subs[d.only]; ok {
					r.deliver(s, d.snap)
				}
				continue
			}
			for _, s := range subs {
				r.deliver(s, d.snap)
			}
		}
	}
}

// deliver runs on the notifier goroutine only, which owns lastSeq.
func (r *Resource[K, T]) deliver(s *subscriber[K, T], snap Snapshot[K, T]) {
	if snap.seq != 0 && snap.seq <= s.lastSeq {
		return
	}
	s.lastSeq = snap.seq
	s.fn(snap)
}
