package specialist

import (
	"context"
	"fmt"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	promptx "github.com/tanpawarit/Chative-Course-Concierge/agent/prompt"
	toolx "github.com/tanpawarit/Chative-Course-Concierge/agent/tool"
)

type registryImpl struct {
	router   contractx.Router
	handlers map[contractx.Route]contractx.Handler
}

func (r *registryImpl) Router() contractx.Router {
	return r.router
}

func (r *registryImpl) Handler(route contractx.Route) (contractx.Handler, bool) {
	h, ok := r.handlers[route]
	return h, ok
}

// Models are the chat models per role. Specialist must support tool binding.
type Models struct {
	Router     einomodel.BaseChatModel
	Specialist einomodel.ToolCallingChatModel
	Summarizer einomodel.BaseChatModel
}

type Deps struct {
	Models       Models
	Prompts      promptx.PromptSet
	Tools        toolx.Deps
	Complaints   contractx.ComplaintStore
	MaxToolCalls int
	HistoryURL   string
	Now          func() time.Time
}

func NewRegistry(ctx context.Context, deps Deps) (contractx.Registry, error) {
	if deps.Models.Router == nil || deps.Models.Specialist == nil {
		return nil, fmt.Errorf("%w: router and specialist models are required", contractx.ErrValidation)
	}
	summarizer := deps.Models.Summarizer
	if summarizer == nil {
		summarizer = deps.Models.Specialist
	}

	router, err := newRouter(ctx, deps.Models.Router, deps.Prompts.Router)
	if err != nil {
		return nil, err
	}

	handlers := make(map[contractx.Route]contractx.Handler, len(contractx.HandlerRoutes))
	for route, prompt := range map[contractx.Route]string{
		contractx.RouteAdvisor:      deps.Prompts.Advisor,
		contractx.RouteEnrollment:   deps.Prompts.Enrollment,
		contractx.RouteModification: deps.Prompts.Modification,
	} {
		h, err := newToolLoopHandler(ctx, loopConfig{
			Route:        route,
			ToolModel:    deps.Models.Specialist,
			SystemPrompt: prompt,
			Tools:        deps.Tools,
			MaxToolCalls: deps.MaxToolCalls,
		})
		if err != nil {
			return nil, err
		}
		handlers[route] = h
	}

	escalation, err := newEscalationHandler(ctx, escalationConfig{
		Model:        summarizer,
		SystemPrompt: deps.Prompts.Summarizer,
		Complaints:   deps.Complaints,
		Sheets:       deps.Tools.Sheets,
		Notifier:     deps.Tools.Notifier,
		HistoryURL:   deps.HistoryURL,
		Now:          deps.Now,
	})
	if err != nil {
		return nil, err
	}
	handlers[contractx.RouteEscalation] = escalation

	return &registryImpl{router: router, handlers: handlers}, nil
}
