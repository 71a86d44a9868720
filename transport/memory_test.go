package transport

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBusSendRecv(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.NewBus(1)
	b := net.NewBus(2)

	if err := a.Send(context.Background(), 2, []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	from, payload, err := b.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if from != 1 {
		t.Fatalf("from = %d, want 1", from)
	}
	if string(payload) != "hello" {
		t.Fatalf("payload = %q, want hello", payload)
	}
}

func TestMemoryBusSendToUnknownPeerIsSilentDrop(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.NewBus(1)

	if err := a.Send(context.Background(), 99, []byte("lost")); err != nil {
		t.Fatalf("Send to unknown peer should not error, got %v", err)
	}
}

func TestMemoryBusRecvRespectsContext(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.NewBus(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err := a.Recv(ctx)
	if err == nil {
		t.Fatalf("Recv should have timed out")
	}
}
