package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

type routerImpl struct {
	runner compose.Runnable[map[string]any, routerLLMOutput]
}

type routerLLMOutput struct {
	Next           string `json:"next"`
	ClosingMessage string `json:"closing_message,omitempty"`
}

func newRouter(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*routerImpl, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: router", contractx.ErrPromptMissing)
	}
	runner, err := compileRouterGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile router graph: %v", contractx.ErrModelInvoke, err)
	}
	return &routerImpl{runner: runner}, nil
}

func (r *routerImpl) Decide(ctx context.Context, st *statex.ConversationState) (contractx.Decision, error) {
	if st == nil {
		return contractx.Decision{}, fmt.Errorf("%w: state is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(st.UserInput) == "" {
		return contractx.Decision{}, fmt.Errorf("%w: user input is required", contractx.ErrValidation)
	}

	payload := map[string]any{
		"history":    transcript(conversationHistory(st.Messages)),
		"cart":       cartView(st),
		"orders":     ordersView(st),
		"user_input": st.UserInput,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return contractx.Decision{}, fmt.Errorf("%w: marshal router payload: %v", contractx.ErrValidation, err)
	}

	out, err := r.runner.Invoke(ctx, map[string]any{
		"input": string(input),
	})
	if err != nil {
		return contractx.Decision{}, fmt.Errorf("%w: router invoke: %v", contractx.ErrModelInvoke, err)
	}

	next := contractx.Route(strings.TrimSpace(out.Next))
	if !next.Valid() {
		return contractx.Decision{}, fmt.Errorf("%w: %w: next=%q", contractx.ErrSchemaViolation, contractx.ErrUnknownRoute, out.Next)
	}
	dec := contractx.Decision{Next: next}
	if next == contractx.RouteEnd {
		dec.ClosingMessage = strings.TrimSpace(out.ClosingMessage)
	}

	guarded := guardDecision(dec, st.UserInput)
	if guarded.Next != dec.Next {
		logx.Info().
			Str("session_id", st.SessionID).
			Str("model_route", string(dec.Next)).
			Str("route", string(guarded.Next)).
			Msg("route upgraded by keyword guard")
	}
	return guarded, nil
}
