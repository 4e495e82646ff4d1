package clientapi

import (
	"context"
	"testing"
	"time"
)

func newTestConnection() *Connection {
	return newConnection(nil, nil, "alice", time.Second)
}

func TestSendEventQueuesEnvelope(t *testing.T) {
	c := newTestConnection()

	if err := c.SendEvent(context.Background(), "hello"); err != nil {
		t.Fatalf("SendEvent: %v", err)
	}

	select {
	case env := <-c.send:
		if env.Event != "Unknown" || env.Data != "hello" {
			t.Fatalf("unexpected queued envelope: %+v", env)
		}
	default:
		t.Fatal("expected an envelope to be queued")
	}
}

func TestSendEventFailsWhenBufferFull(t *testing.T) {
	c := newTestConnection()

	for i := 0; i < sendBuffer; i++ {
		if err := c.SendEvent(context.Background(), i); err != nil {
			t.Fatalf("SendEvent %d: %v", i, err)
		}
	}

	if err := c.SendEvent(context.Background(), "overflow"); err == nil {
		t.Fatal("expected SendEvent to fail once the buffer is full")
	}
}

func TestSendEventFailsAfterClosed(t *testing.T) {
	c := newTestConnection()
	close(c.closed)

	if err := c.SendEvent(context.Background(), "hello"); err == nil {
		t.Fatal("expected SendEvent to fail on a closed connection")
	}
}
