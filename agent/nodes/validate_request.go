package orchestratornode

import (
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
)

// StepSink receives every step that produced messages, in graph order. It returns
// false once nobody is listening anymore.
type StepSink func(step contractx.Step) bool

type GraphInput struct {
	SessionID       string
	ConversationKey string
	UserInput       string
	Sink            StepSink
}

type GraphOutput struct {
	SessionID string
	Reply     string
	Route     contractx.Route
}

// GraphState is threaded through the turn graph. State is replaced, never
// mutated in place, each time a delta is merged.
type GraphState struct {
	SessionID       string
	ConversationKey string
	UserInput       string
	Now             time.Time

	State    *statex.ConversationState
	Decision contractx.Decision
	Delta    statex.Delta

	sink StepSink
}

// emit returns ErrStreamClosed when the consumer is gone, so the node can stop the turn.
func (g *GraphState) emit(node string, msgs []*schema.Message) error {
	if g.sink == nil || len(msgs) == 0 {
		return nil
	}
	if !g.sink(contractx.Step{Node: node, Messages: msgs}) {
		return fmt.Errorf("%w: at %s", contractx.ErrStreamClosed, node)
	}
	return nil
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: %w", contractx.ErrValidation, statex.ErrInvalidSession)
	}
	text := strings.TrimSpace(in.UserInput)
	if text == "" {
		return nil, fmt.Errorf("%w: user input is empty", contractx.ErrValidation)
	}

	return &GraphState{
		SessionID:       sessionID,
		ConversationKey: strings.TrimSpace(in.ConversationKey),
		UserInput:       text,
		Now:             nowFn().UTC(),
		sink:            in.Sink,
	}, nil
}
