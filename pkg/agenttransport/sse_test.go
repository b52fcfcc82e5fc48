package agenttransport

import (
	"context"
	"testing"
	"time"
)

func TestSSETransport_DispatchAndHandleResponse(t *testing.T) {
	tr := NewSSETransport("a1", time.Second)
	conn := tr.RegisterConnection()

	done := make(chan struct{})
	go func() {
		ev := <-conn.Events()
		if ev.Event != "agent_request" {
			t.Errorf("unexpected event %q", ev.Event)
		}
		tr.HandleAgentResponse(ev.ID, AgentResponse{Timestamp: time.Now(), Type: MessageText, Content: "ok"})
		close(done)
	}()

	resp, err := tr.Dispatch(context.Background(), AgentRequest{}, nil)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("unexpected content %v", resp.Content)
	}
	<-done
}

func TestSSETransport_DispatchWithoutConnection(t *testing.T) {
	tr := NewSSETransport("a1", time.Second)
	if _, err := tr.Dispatch(context.Background(), AgentRequest{}, nil); err == nil {
		t.Error("expected error without a registered connection")
	}
}

func TestSSETransport_DisconnectRejectsPending(t *testing.T) {
	tr := NewSSETransport("a1", 5*time.Second)
	tr.RegisterConnection()

	errCh := make(chan error, 1)
	go func() {
		_, err := tr.Dispatch(context.Background(), AgentRequest{}, nil)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	tr.Disconnect()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected error after disconnect")
		}
	case <-time.After(time.Second):
		t.Fatal("dispatch did not return after disconnect")
	}
}

func TestSSETransport_Timeout(t *testing.T) {
	tr := NewSSETransport("a1", 30*time.Millisecond)
	conn := tr.RegisterConnection()
	go func() { <-conn.Events() }()

	if _, err := tr.Dispatch(context.Background(), AgentRequest{}, nil); err == nil {
		t.Error("expected timeout error")
	}
}
