package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	nodex "github.com/tanpawarit/Chative-Course-Concierge/agent/nodes"
	sessionx "github.com/tanpawarit/Chative-Course-Concierge/agent/session"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
	streamx "github.com/tanpawarit/Chative-Course-Concierge/agent/stream"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

const (
	DefaultTurnTimeout = 90 * time.Second

	// Greeting is the reply to a restart command.
	Greeting = "Chào anh/chị, em rất vui được hỗ trợ anh/chị. Nếu anh/chị có thắc mắc hoặc cần tư vấn về các khóa học của trung tâm, hãy cho em biết nhé! Em rất sẵn lòng giúp đỡ."

	nodeRestart = "restart"
)

// SessionResolver maps a conversation key to its durable session id.
type SessionResolver interface {
	Resolve(ctx context.Context, conversationKey string) (string, error)
	Reset(ctx context.Context, conversationKey string) (string, error)
}

type Config struct {
	TurnTimeout time.Duration
}

type Deps struct {
	Resolver  SessionResolver
	Locker    sessionx.Locker
	Store     statex.Store
	Registry  contractx.Registry
	Directory contractx.CustomerDirectory
	Callbacks []einocb.Handler
}

// Orchestrator is the turn runner. One RunTurn drives exactly one pass of the turn graph.
type Orchestrator struct {
	resolver  SessionResolver
	locker    sessionx.Locker
	store     statex.Store
	registry  contractx.Registry
	directory contractx.CustomerDirectory
	callbacks []einocb.Handler

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	turnTimeout time.Duration
	now         func() time.Time
}

func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Resolver == nil {
		return nil, errors.New("session resolver is required")
	}
	if deps.Store == nil {
		return nil, errors.New("state store is required")
	}
	if deps.Registry == nil || deps.Registry.Router() == nil {
		return nil, errors.New("handler registry with a router is required")
	}
	locker := deps.Locker
	if locker == nil {
		locker = sessionx.NewMemoryLocker()
	}
	timeout := cfg.TurnTimeout
	if timeout <= 0 {
		timeout = DefaultTurnTimeout
	}

	o := &Orchestrator{
		resolver:    deps.Resolver,
		locker:      locker,
		store:       deps.Store,
		registry:    deps.Registry,
		directory:   deps.Directory,
		callbacks:   deps.Callbacks,
		turnTimeout: timeout,
		now:         time.Now,
	}

	graphRunner, err := o.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// RunTurn resolves the session, takes its turn lock and starts the turn graph. Steps are
// pulled from the returned source; closing it cancels the turn. The lock is released
// when the turn ends.
func (o *Orchestrator) RunTurn(ctx context.Context, conversationKey, userInput string) (*streamx.Source, string, error) {
	conversationKey = strings.TrimSpace(conversationKey)
	sessionID, err := o.resolver.Resolve(ctx, conversationKey)
	if err != nil {
		return nil, "", err
	}

	release, err := o.locker.Acquire(ctx, sessionID)
	if err != nil {
		if errors.Is(err, contractx.ErrTurnInProgress) {
			logx.Warn().Str("session_id", sessionID).Msg("turn rejected, session busy")
		}
		return nil, sessionID, err
	}

	logx.Info().
		Str("session_id", sessionID).
		Str("conversation_key", conversationKey).
		Msg("turn started")

	src := streamx.Produce(ctx, func(ctx context.Context, emit streamx.EmitFunc) error {
		defer release(context.WithoutCancel(ctx))

		ctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
		defer cancel()

		started := o.now()
		out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
			SessionID:       sessionID,
			ConversationKey: conversationKey,
			UserInput:       userInput,
			Sink:            nodex.StepSink(emit),
		}, compose.WithCallbacks(o.callbacks...))
		if errors.Is(err, contractx.ErrStreamClosed) {
			logx.Info().Str("session_id", sessionID).Msg("turn stopped, consumer closed the stream")
			return err
		}
		if err != nil {
			return err
		}

		logx.Info().
			Str("session_id", sessionID).
			Str("route", string(out.Route)).
			Dur("elapsed", o.now().Sub(started)).
			Msg("turn completed")
		return nil
	})
	return src, sessionID, nil
}

// RunTurnSync drains one turn and returns only the final assistant reply.
func (o *Orchestrator) RunTurnSync(ctx context.Context, conversationKey, userInput string) (string, string, error) {
	src, sessionID, err := o.RunTurn(ctx, conversationKey, userInput)
	if err != nil {
		return "", sessionID, err
	}
	reply, err := streamx.Collect(src)
	return reply, sessionID, err
}

// RestartTurn mints a new session id for the conversation and answers with the greeting.
// The router is not consulted and the previous checkpoint is left orphaned.
func (o *Orchestrator) RestartTurn(ctx context.Context, conversationKey string) (*streamx.Source, string, error) {
	sessionID, err := o.resolver.Reset(ctx, strings.TrimSpace(conversationKey))
	if err != nil {
		return nil, "", err
	}
	src := streamx.Produce(ctx, func(ctx context.Context, emit streamx.EmitFunc) error {
		emit(contractx.Step{
			Node:     nodeRestart,
			Messages: []*schema.Message{schema.AssistantMessage(Greeting, nil)},
		})
		return nil
	})
	return src, sessionID, nil
}

var _ SessionResolver = (*sessionx.Resolver)(nil)
