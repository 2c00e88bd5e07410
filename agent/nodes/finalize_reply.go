package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil || in.State == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.State.LastAssistantMessage())
	if reply == "" {
		return GraphOutput{}, fmt.Errorf("%w: turn produced no assistant message", contractx.ErrSchemaViolation)
	}
	return GraphOutput{
		SessionID: in.SessionID,
		Reply:     reply,
		Route:     in.Decision.Next,
	}, nil
}
