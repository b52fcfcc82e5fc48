package agenttransport

import (
	"testing"

	"github.com/cubicler/cubicler/pkg/config"
)

func TestNew_HTTPTransport(t *testing.T) {
	agent := config.AgentConfig{Identifier: "a1", Transport: config.TransportHTTP, HTTP: &config.HTTPAgentTransport{URL: "http://a:1"}}
	tr, err := New(agent, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := tr.(*HTTPTransport); !ok {
		t.Errorf("expected *HTTPTransport, got %T", tr)
	}
}

func TestNew_HTTPMissingURL(t *testing.T) {
	agent := config.AgentConfig{Identifier: "a1", Transport: config.TransportHTTP, HTTP: &config.HTTPAgentTransport{}}
	if _, err := New(agent, nil, nil); err == nil {
		t.Error("expected error for missing url")
	}
}

func TestNew_SSETransportRequiresRegistration(t *testing.T) {
	agent := config.AgentConfig{Identifier: "a1", Transport: config.TransportSSE}
	if _, err := New(agent, nil, nil); err == nil {
		t.Error("expected error when sse transport is not registered")
	}
	sse := NewSSETransport("a1", 0)
	tr, err := New(agent, sse, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tr != Transport(sse) {
		t.Error("expected the registered sse transport to be returned")
	}
}

func TestNew_StdioRequiresPool(t *testing.T) {
	agent := config.AgentConfig{Identifier: "a1", Transport: config.TransportStdio}
	if _, err := New(agent, nil, nil); err == nil {
		t.Error("expected error when stdio pool is not constructed")
	}
}

func TestNew_UnknownTransport(t *testing.T) {
	agent := config.AgentConfig{Identifier: "a1", Transport: "ftp"}
	if _, err := New(agent, nil, nil); err == nil {
		t.Error("expected error for unknown transport")
	}
}

func TestNewStdioPool_RequiresConfig(t *testing.T) {
	agent := config.AgentConfig{Identifier: "a1", Transport: config.TransportStdio}
	if _, err := NewStdioPool(agent); err == nil {
		t.Error("expected error when stdio config is missing")
	}
}
