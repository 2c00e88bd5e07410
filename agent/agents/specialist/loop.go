package specialist

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
	toolx "github.com/tanpawarit/Chative-Course-Concierge/agent/tool"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

const DefaultMaxToolCalls = 10

const (
	nodePrepare  = "prepare"
	nodePrompt   = "prompt"
	nodeModel    = "call_model"
	nodeRunTools = "run_tools"
	nodeWrapUp   = "wrap_up"
	nodeFinish   = "finish"
)

type loopInput struct {
	State   *statex.ConversationState
	Context string

	// toolErr keeps the tool failure intact so callers can still inspect its kind.
	toolErr error
}

// loopState is graph local state. It is only touched inside state handlers and ProcessState.
type loopState struct {
	input    *loopInput
	working  *statex.ConversationState
	delta    statex.Delta
	history  []*schema.Message
	produced []*schema.Message
	calls    int
	limitHit bool
	idSeq    int
}

type loopResult struct {
	Reply    *schema.Message
	Delta    statex.Delta
	Messages []*schema.Message
	Calls    int
}

func maxRunSteps(maxCalls int) int {
	return max(20, 10+2*maxCalls)
}

func limitNotice(maxCalls int) string {
	return fmt.Sprintf("SYSTEM NOTICE: You have reached the maximum tool call limit (%d). "+
		"Answer the customer now using the information already gathered, without calling any tool. "+
		"Acknowledge anything you could not complete.", maxCalls)
}

// compileToolLoopGraph builds: prepare -> prompt -> call_model, then call_model either
// runs the requested tools and loops back, or finishes. Once the call budget is spent
// the plain model answers after a system notice.
func compileToolLoopGraph(
	ctx context.Context,
	name string,
	toolModel einomodel.BaseChatModel,
	plainModel einomodel.BaseChatModel,
	systemPrompt string,
	exec toolx.Executor,
	maxCalls int,
) (compose.Runnable[*loopInput, *loopResult], error) {
	if maxCalls <= 0 {
		maxCalls = DefaultMaxToolCalls
	}

	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.SystemMessage("{context}"),
		schema.MessagesPlaceholder("history", true),
	)

	graph := compose.NewGraph[*loopInput, *loopResult](
		compose.WithGenLocalState(func(ctx context.Context) *loopState {
			return &loopState{}
		}),
	)

	if err := graph.AddLambdaNode(nodePrepare,
		compose.InvokableLambda(func(ctx context.Context, in *loopInput) (map[string]any, error) {
			if in == nil || in.State == nil {
				return nil, fmt.Errorf("%w: handler input state is nil", contractx.ErrValidation)
			}
			err := compose.ProcessState(ctx, func(_ context.Context, s *loopState) error {
				s.input = in
				s.working = in.State.Clone()
				return nil
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"context": in.Context,
				"history": conversationHistory(in.State.Messages),
			}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add tool loop prepare node: %w", err)
	}

	if err := graph.AddChatTemplateNode(nodePrompt, template); err != nil {
		return nil, fmt.Errorf("add tool loop prompt node: %w", err)
	}

	if err := graph.AddChatModelNode(nodeModel, toolModel,
		compose.WithStatePreHandler(func(ctx context.Context, in []*schema.Message, s *loopState) ([]*schema.Message, error) {
			s.history = append(s.history, in...)
			return slices.Clone(s.history), nil
		}),
		compose.WithStatePostHandler(func(ctx context.Context, out *schema.Message, s *loopState) (*schema.Message, error) {
			if out == nil {
				return nil, fmt.Errorf("%w: empty model response", contractx.ErrSchemaViolation)
			}
			for i := range out.ToolCalls {
				if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
					s.idSeq++
					out.ToolCalls[i].ID = fmt.Sprintf("call_%d", s.idSeq)
				}
			}
			s.history = append(s.history, out)
			s.produced = append(s.produced, out)
			return out, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add tool loop model node: %w", err)
	}

	if err := graph.AddLambdaNode(nodeRunTools,
		compose.InvokableLambda(func(ctx context.Context, msg *schema.Message) ([]*schema.Message, error) {
			return runTools(ctx, msg, exec, maxCalls)
		}),
	); err != nil {
		return nil, fmt.Errorf("add tool loop run_tools node: %w", err)
	}

	if err := graph.AddChatModelNode(nodeWrapUp, plainModel,
		compose.WithStatePreHandler(func(ctx context.Context, in []*schema.Message, s *loopState) ([]*schema.Message, error) {
			s.history = append(s.history, in...)
			s.history = append(s.history, schema.SystemMessage(limitNotice(maxCalls)))
			return slices.Clone(s.history), nil
		}),
		compose.WithStatePostHandler(func(ctx context.Context, out *schema.Message, s *loopState) (*schema.Message, error) {
			if out != nil {
				s.history = append(s.history, out)
				s.produced = append(s.produced, out)
			}
			return out, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add tool loop wrap_up node: %w", err)
	}

	if err := graph.AddLambdaNode(nodeFinish,
		compose.InvokableLambda(func(ctx context.Context, msg *schema.Message) (*loopResult, error) {
			res := &loopResult{Reply: msg}
			err := compose.ProcessState(ctx, func(_ context.Context, s *loopState) error {
				res.Delta = s.delta
				res.Messages = slices.Clone(s.produced)
				res.Calls = s.calls
				return nil
			})
			return res, err
		}),
	); err != nil {
		return nil, fmt.Errorf("add tool loop finish node: %w", err)
	}

	afterModel := compose.NewGraphBranch(
		func(ctx context.Context, out *schema.Message) (string, error) {
			if out != nil && len(out.ToolCalls) > 0 {
				return nodeRunTools, nil
			}
			return nodeFinish, nil
		},
		map[string]bool{nodeRunTools: true, nodeFinish: true},
	)
	afterTools := compose.NewGraphBranch(
		func(ctx context.Context, _ []*schema.Message) (string, error) {
			var hit bool
			err := compose.ProcessState(ctx, func(_ context.Context, s *loopState) error {
				hit = s.limitHit
				return nil
			})
			if hit {
				return nodeWrapUp, err
			}
			return nodeModel, err
		},
		map[string]bool{nodeModel: true, nodeWrapUp: true},
	)

	edges := [][2]string{
		{compose.START, nodePrepare},
		{nodePrepare, nodePrompt},
		{nodePrompt, nodeModel},
		{nodeWrapUp, nodeFinish},
		{nodeFinish, compose.END},
	}
	for _, e := range edges {
		if err := graph.AddEdge(e[0], e[1]); err != nil {
			return nil, fmt.Errorf("add tool loop edge %s->%s: %w", e[0], e[1], err)
		}
	}
	if err := graph.AddBranch(nodeModel, afterModel); err != nil {
		return nil, fmt.Errorf("add tool loop model branch: %w", err)
	}
	if err := graph.AddBranch(nodeRunTools, afterTools); err != nil {
		return nil, fmt.Errorf("add tool loop tools branch: %w", err)
	}

	runner, err := graph.Compile(ctx,
		compose.WithGraphName(name),
		compose.WithMaxRunSteps(maxRunSteps(maxCalls)),
	)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return runner, nil
}

// runTools executes the requested calls one after another against the working copy.
// Calls beyond the budget are answered with a notice instead of running.
func runTools(ctx context.Context, msg *schema.Message, exec toolx.Executor, maxCalls int) ([]*schema.Message, error) {
	var (
		in      *loopInput
		working *statex.ConversationState
		used    int
	)
	if err := compose.ProcessState(ctx, func(_ context.Context, s *loopState) error {
		in, working, used = s.input, s.working, s.calls
		return nil
	}); err != nil {
		return nil, err
	}

	var delta statex.Delta
	results := make([]*schema.Message, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		name := strings.TrimSpace(call.Function.Name)
		if used >= maxCalls {
			results = append(results, schema.ToolMessage(limitNotice(maxCalls), call.ID, schema.WithToolName(name)))
			continue
		}
		used++

		out, err := exec(ctx, working, name, call.Function.Arguments)
		if err != nil {
			if in != nil {
				in.toolErr = err
			}
			return nil, err
		}
		if !out.Delta.IsEmpty() {
			working = statex.Merge(working, out.Delta)
			delta = statex.Combine(delta, out.Delta)
		}
		results = append(results, schema.ToolMessage(out.Message, call.ID, schema.WithToolName(name)))
	}

	err := compose.ProcessState(ctx, func(_ context.Context, s *loopState) error {
		s.working = working
		s.delta = statex.Combine(s.delta, delta)
		s.calls = used
		s.limitHit = used >= maxCalls
		s.produced = append(s.produced, results...)
		if s.limitHit {
			logx.Warn().Int("tool_calls", used).Str("session_id", working.SessionID).Msg("tool call limit reached")
		}
		return nil
	})
	return results, err
}

// toolLoopHandler serves the advisor, enrollment and modification routes.
type toolLoopHandler struct {
	route  contractx.Route
	runner compose.Runnable[*loopInput, *loopResult]
}

type loopConfig struct {
	Route        contractx.Route
	ToolModel    einomodel.ToolCallingChatModel
	PlainModel   einomodel.BaseChatModel
	SystemPrompt string
	Tools        toolx.Deps
	MaxToolCalls int
}

func newToolLoopHandler(ctx context.Context, cfg loopConfig) (*toolLoopHandler, error) {
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		return nil, fmt.Errorf("%w: %s", contractx.ErrPromptMissing, cfg.Route)
	}
	infos, exec := toolx.BuildForRoute(cfg.Route, cfg.Tools)
	bound, err := cfg.ToolModel.WithTools(infos)
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools for route=%s: %v", contractx.ErrModelInvoke, cfg.Route, err)
	}
	plain := cfg.PlainModel
	if plain == nil {
		plain = cfg.ToolModel
	}
	runner, err := compileToolLoopGraph(ctx, string(cfg.Route)+".tool_loop", bound, plain, cfg.SystemPrompt, exec, cfg.MaxToolCalls)
	if err != nil {
		return nil, fmt.Errorf("%w: compile %s tool loop: %v", contractx.ErrModelInvoke, cfg.Route, err)
	}
	return &toolLoopHandler{route: cfg.Route, runner: runner}, nil
}

func (h *toolLoopHandler) Handle(ctx context.Context, st *statex.ConversationState) (statex.Delta, error) {
	if st == nil {
		return statex.Delta{}, fmt.Errorf("%w: state is required", contractx.ErrValidation)
	}
	in := &loopInput{State: st, Context: handlerContext(h.route, st)}
	res, err := h.runner.Invoke(ctx, in)
	if err != nil {
		if in.toolErr != nil {
			return statex.Delta{}, in.toolErr
		}
		if errors.Is(err, contractx.ErrValidation) || errors.Is(err, contractx.ErrSchemaViolation) {
			return statex.Delta{}, err
		}
		return statex.Delta{}, fmt.Errorf("%w: %s handler: %v", contractx.ErrModelInvoke, h.route, err)
	}
	if res == nil || res.Reply == nil || strings.TrimSpace(res.Reply.Content) == "" {
		return statex.Delta{}, fmt.Errorf("%w: %s handler produced no reply", contractx.ErrSchemaViolation, h.route)
	}

	logx.Info().
		Str("session_id", st.SessionID).
		Str("route", string(h.route)).
		Int("tool_calls", res.Calls).
		Msg("handler replied")

	delta := res.Delta
	delta.Messages = res.Messages
	delta.RoutingDecision = statex.String(statex.RouteEnd)
	return delta, nil
}
