// Package broadcast provides an in-process pub/sub channel with one sender
// and any number of independent receivers. Each receiver observes every
// message in publish order through its own bounded queue, so a slow receiver
// never stalls the sender beyond its queue policy. The optional resend-latest
// mode hands the most recent message to newly created receivers before any
// further publication.
package broadcast

import "sync"

// Policy controls what happens when a receiver queue is full.
type Policy int

const (
	// DropOldest discards the oldest queued message to make room.
	DropOldest Policy = iota
	// Block makes the sender wait until the receiver drains one message.
	Block
)

// DefaultCapacity is the per-receiver queue size used when none is given.
const DefaultCapacity = 32

type options struct {
	capacity     int
	policy       Policy
	resendLatest bool
}

// Option configures a Broadcast.
type Option func(*options)

// WithCapacity sets the per-receiver queue capacity.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithPolicy sets the full-queue policy.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithResendLatest makes new receivers start with the last published message.
func WithResendLatest() Option {
	return func(o *options) { o.resendLatest = true }
}

// Broadcast fans messages out to registered receivers. It keeps an explicit
// last-message slot and a registry of per-receiver queues indexed by id.
type Broadcast[T any] struct {
	name string
	opts options

	mu        sync.Mutex
	receivers map[int]*Receiver[T]
	nextID    int
	latest    T
	hasLatest bool
	closed    bool
}

// New creates a named broadcast channel.
func New[T any](name string, opts ...Option) *Broadcast[T] {
	o := options{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	return &Broadcast[T]{
		name:      name,
		opts:      o,
		receivers: make(map[int]*Receiver[T]),
	}
}

// Name returns the channel name given at construction.
func (b *Broadcast[T]) Name() string { return b.name }

// Send publishes the message to every current receiver. With DropOldest a
// full receiver loses its oldest queued message; with Block the sender waits
// for that receiver to drain, or for the receiver to close.
func (b *Broadcast[T]) Send(msg T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.latest = msg
	b.hasLatest = true
	for _, r := range b.receivers {
		r.deliver(msg, b.opts.policy)
	}
}

// NewReceiver registers a new receiver. In resend-latest mode its queue is
// primed with the most recent message, so late subscribers always observe an
// initial value.
func (b *Broadcast[T]) NewReceiver() *Receiver[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := &Receiver[T]{
		b:    b,
		ch:   make(chan T, b.opts.capacity),
		done: make(chan struct{}),
	}
	if b.closed {
		close(r.ch)
		return r
	}
	r.id = b.nextID
	b.nextID++
	b.receivers[r.id] = r
	if b.opts.resendLatest && b.hasLatest {
		r.ch <- b.latest
	}
	return r
}

// Close closes the channel and every receiver queue. Further Sends are no-ops.
func (b *Broadcast[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, r := range b.receivers {
		close(r.ch)
		delete(b.receivers, id)
	}
}

// Receiver is one subscriber's bounded queue over a Broadcast.
type Receiver[T any] struct {
	b    *Broadcast[T]
	ch   chan T
	done chan struct{}
	id   int

	closeOnce sync.Once
}

// C returns the channel messages are delivered on. It is closed when either
// the receiver or the broadcast channel is closed.
func (r *Receiver[T]) C() <-chan T { return r.ch }

// Close detaches the receiver from the broadcast channel and closes its
// queue. A sender blocked on this receiver is released.
func (r *Receiver[T]) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.b.mu.Lock()
		defer r.b.mu.Unlock()
		if _, ok := r.b.receivers[r.id]; ok {
			delete(r.b.receivers, r.id)
			close(r.ch)
		}
	})
}

// deliver enqueues msg according to the policy. Runs under the registry
// lock, so the queue cannot be closed concurrently.
func (r *Receiver[T]) deliver(msg T, p Policy) {
	if p == Block {
		select {
		case r.ch <- msg:
		case <-r.done:
		}
		return
	}
	for {
		select {
		case r.ch <- msg:
			return
		default:
		}
		select {
		case <-r.ch: // drop oldest
		default:
		}
	}
}
