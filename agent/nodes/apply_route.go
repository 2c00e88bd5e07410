package orchestratornode

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
)

// ApplyRoute records the decision. Ending appends the closing message, otherwise the
// user input is appended so the handler sees it as the newest message.
func ApplyRoute(in *GraphState) (*GraphState, error) {
	if in == nil || in.State == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}

	d := statex.Delta{RoutingDecision: statex.String(string(in.Decision.Next))}
	if in.Decision.Next == contractx.RouteEnd {
		closing := strings.TrimSpace(in.Decision.ClosingMessage)
		if closing == "" {
			closing = FallbackClosingMessage
		}
		d.Messages = []*schema.Message{schema.AssistantMessage(closing, nil)}
	} else {
		d.Messages = []*schema.Message{schema.UserMessage(in.UserInput)}
	}

	in.State = statex.Merge(in.State, d)
	if err := in.emit(NodeApplyRoute, d.Messages); err != nil {
		return nil, err
	}
	return in, nil
}
