package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/cubicler/cubicler/pkg/agenttransport"
	"github.com/cubicler/cubicler/pkg/config"
)

// Transport-level failures after agent resolution never surface as errors:
// they are shaped into a text DispatchResponse with zeroed usage counters
// and the resolved agent as sender.
func TestDispatch_TransportFailureShapedIntoErrorResponse(t *testing.T) {
	ctrl := gomock.NewController(t)
	agent := testAgent("a1")

	transport := NewMockTransport(ctrl)
	transport.EXPECT().
		Dispatch(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("agent process exited with code 1"))

	svc := New(
		&fakeAgents{cfg: &config.AgentsConfig{Agents: []config.AgentConfig{agent}}},
		&fakeMCP{},
		&fakeResolver{},
		map[string]agenttransport.Transport{"a1": transport},
	)

	resp, err := svc.Dispatch(context.Background(), "a1", DispatchRequest{
		Messages: []agenttransport.Message{{Type: agenttransport.MessageText, Content: "hi"}},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.Equal(t, "a1", resp.Sender.ID)
	assert.Equal(t, agent.Name, resp.Sender.Name)
	assert.Equal(t, agenttransport.MessageText, resp.Type)
	assert.Contains(t, resp.Content, "exited with code 1")
	assert.Zero(t, resp.Metadata.UsedToken)
	assert.Zero(t, resp.Metadata.UsedTools)
	assert.False(t, resp.Timestamp.IsZero())
}

// An incomplete agent response (missing timestamp/type/content) is treated
// the same way as a transport failure.
func TestDispatch_IncompleteAgentResponseShaped(t *testing.T) {
	ctrl := gomock.NewController(t)
	agent := testAgent("a1")

	transport := NewMockTransport(ctrl)
	transport.EXPECT().
		Dispatch(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&agenttransport.AgentResponse{}, nil)

	svc := New(
		&fakeAgents{cfg: &config.AgentsConfig{Agents: []config.AgentConfig{agent}}},
		&fakeMCP{},
		&fakeResolver{},
		map[string]agenttransport.Transport{"a1": transport},
	)

	resp, err := svc.Dispatch(context.Background(), "", DispatchRequest{
		Messages: []agenttransport.Message{{Type: agenttransport.MessageText, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, agenttransport.MessageText, resp.Type)
	assert.Contains(t, resp.Content, "incomplete")
	assert.Zero(t, resp.Metadata.UsedTools)
}
