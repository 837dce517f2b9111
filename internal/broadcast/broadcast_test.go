package broadcast

import (
	"testing"
	"time"
)

func recvTimeout[T any](t *testing.T, r *Receiver[T]) T {
	t.Helper()
	select {
	case v, ok := <-r.C():
		if !ok {
			t.Fatal("receiver closed")
		}
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	var zero T
	return zero
}

func TestSendOrder(t *testing.T) {
	b := New[int]("test")
	defer b.Close()
	r1 := b.NewReceiver()
	r2 := b.NewReceiver()

	for i := 1; i <= 3; i++ {
		b.Send(i)
	}
	for _, r := range []*Receiver[int]{r1, r2} {
		for i := 1; i <= 3; i++ {
			if got := recvTimeout(t, r); got != i {
				t.Fatalf("expected %d, got %d", i, got)
			}
		}
	}
}

func TestDropOldest(t *testing.T) {
	b := New[int]("test", WithCapacity(2))
	defer b.Close()
	r := b.NewReceiver()

	b.Send(1)
	b.Send(2)
	b.Send(3) // 1 is dropped

	if got := recvTimeout(t, r); got != 2 {
		t.Fatalf("expected 2 after drop, got %d", got)
	}
	if got := recvTimeout(t, r); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestBlockPolicy(t *testing.T) {
	b := New[int]("test", WithCapacity(1), WithPolicy(Block))
	defer b.Close()
	r := b.NewReceiver()

	b.Send(1)
	sent := make(chan struct{})
	go func() {
		b.Send(2)
		close(sent)
	}()

	select {
	case <-sent:
		t.Fatal("send should block on full queue")
	case <-time.After(50 * time.Millisecond):
	}

	if got := recvTimeout(t, r); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("send did not unblock after drain")
	}
	if got := recvTimeout(t, r); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}

func TestBlockedSenderReleasedByReceiverClose(t *testing.T) {
	b := New[int]("test", WithCapacity(1), WithPolicy(Block))
	defer b.Close()
	r := b.NewReceiver()

	b.Send(1)
	sent := make(chan struct{})
	go func() {
		b.Send(2)
		close(sent)
	}()
	time.Sleep(20 * time.Millisecond)

	r.Close()
	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("closing the receiver must release a blocked sender")
	}
}

func TestResendLatest(t *testing.T) {
	b := New[string]("test", WithResendLatest())
	defer b.Close()

	early := b.NewReceiver()
	b.Send("a")
	b.Send("b")

	late := b.NewReceiver()
	if got := recvTimeout(t, late); got != "b" {
		t.Fatalf("late receiver expected latest %q, got %q", "b", got)
	}
	if got := recvTimeout(t, early); got != "a" {
		t.Fatalf("early receiver expected %q, got %q", "a", got)
	}
}

func TestNoResendByDefault(t *testing.T) {
	b := New[string]("test")
	defer b.Close()
	b.Send("a")

	r := b.NewReceiver()
	select {
	case v := <-r.C():
		t.Fatalf("unexpected message %q", v)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCloseBroadcast(t *testing.T) {
	b := New[int]("test")
	r := b.NewReceiver()
	b.Close()

	if _, ok := <-r.C(); ok {
		t.Fatal("expected closed receiver channel")
	}
	b.Send(1) // no-op after close
	if r := b.NewReceiver(); r == nil {
		t.Fatal("NewReceiver after close must still return a closed receiver")
	}
}

func TestReceiverCloseIdempotent(t *testing.T) {
	b := New[int]("test")
	defer b.Close()
	r := b.NewReceiver()
	r.Close()
	r.Close()
	b.Send(1) // must not panic on closed receiver
}

func TestIndependentReceivers(t *testing.T) {
	b := New[int]("test")
	defer b.Close()
	r1 := b.NewReceiver()
	r2 := b.NewReceiver()

	b.Send(7)
	r1.Close()
	b.Send(8)

	if got := recvTimeout(t, r2); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if got := recvTimeout(t, r2); got != 8 {
		t.Fatalf("expected 8, got %d", got)
	}
}
