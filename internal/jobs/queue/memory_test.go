package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryFIFO(t *testing.T) {
	q := NewMemory()
	defer q.Close()
	ctx := context.Background()

	a, b := uuid.New(), uuid.New()
	if err := q.Enqueue(ctx, Item{RunID: a}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, Item{RunID: b, Attempt: 2}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if n, _ := q.Depth(ctx); n != 2 {
		t.Fatalf("depth=%d want 2", n)
	}
	first, err := q.Dequeue(ctx, 50*time.Millisecond)
	if err != nil || first == nil || first.RunID != a {
		t.Fatalf("first=%v err=%v", first, err)
	}
	second, err := q.Dequeue(ctx, 50*time.Millisecond)
	if err != nil || second == nil || second.RunID != b || second.Attempt != 2 {
		t.Fatalf("second=%v err=%v", second, err)
	}
}

func TestMemoryDequeueTimeout(t *testing.T) {
	q := NewMemory()
	defer q.Close()
	it, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	if err != nil || it != nil {
		t.Fatalf("it=%v err=%v", it, err)
	}
}

func TestMemoryDequeueWakesOnEnqueue(t *testing.T) {
	q := NewMemory()
	defer q.Close()
	id := uuid.New()
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = q.Enqueue(context.Background(), Item{RunID: id})
	}()
	it, err := q.Dequeue(context.Background(), time.Second)
	if err != nil || it == nil || it.RunID != id {
		t.Fatalf("it=%v err=%v", it, err)
	}
}

func TestMemoryEnqueueAfter(t *testing.T) {
	q := NewMemory()
	defer q.Close()
	ctx := context.Background()
	id := uuid.New()
	if err := q.EnqueueAfter(ctx, Item{RunID: id, Attempt: 1}, 30*time.Millisecond); err != nil {
		t.Fatalf("EnqueueAfter: %v", err)
	}
	if it, _ := q.Dequeue(ctx, 5*time.Millisecond); it != nil {
		t.Fatalf("delayed item visible early")
	}
	it, err := q.Dequeue(ctx, time.Second)
	if err != nil || it == nil || it.RunID != id || it.Attempt != 1 {
		t.Fatalf("it=%v err=%v", it, err)
	}
}

func TestMemoryDequeueCanceled(t *testing.T) {
	q := NewMemory()
	defer q.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Dequeue(ctx, time.Second); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestDecodeItem(t *testing.T) {
	id := uuid.New()
	cases := []struct {
		name    string
		raw     string
		attempt int
		wantErr bool
	}{
		{name: "bare id", raw: id.String()},
		{name: "json", raw: `{"run_id":"` + id.String() + `","attempt":3}`, attempt: 3},
		{name: "missing id", raw: `{"attempt":1}`, wantErr: true},
		{name: "garbage", raw: "not-a-run", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			it, err := decodeItem(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeItem: %v", err)
			}
			if it.RunID != id || it.Attempt != tc.attempt {
				t.Fatalf("item=%+v", it)
			}
		})
	}
}
