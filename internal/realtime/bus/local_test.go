package bus

import (
	"context"
	"testing"

	"github.com/yungbote/intellimix-backend/internal/realtime"
)

func TestLocalForwardsToEverySubscriber(t *testing.T) {
	l := NewLocal()
	var a, b []realtime.SSEMessage
	if err := l.StartForwarder(context.Background(), func(m realtime.SSEMessage) { a = append(a, m) }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	if err := l.StartForwarder(context.Background(), func(m realtime.SSEMessage) { b = append(b, m) }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	if err := l.StartForwarder(context.Background(), nil); err == nil {
		t.Fatalf("nil callback accepted")
	}
	msg := realtime.SSEMessage{Channel: "run:x", Event: realtime.SSEEventRunUpdate}
	if err := l.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(a) != 1 || len(b) != 1 || a[0].Channel != "run:x" {
		t.Fatalf("a=%v b=%v", a, b)
	}
}
