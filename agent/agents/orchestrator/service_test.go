package orchestrator

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	sessionx "github.com/tanpawarit/Chative-Course-Concierge/agent/session"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
	streamx "github.com/tanpawarit/Chative-Course-Concierge/agent/stream"
	"github.com/tanpawarit/Chative-Course-Concierge/pkg/errx"
)

type fakeResolver struct {
	ids    map[string]string
	resets int
	err    error
}

func (f *fakeResolver) Resolve(_ context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if id, ok := f.ids[key]; ok {
		return id, nil
	}
	id := "sess-" + key
	f.ids[key] = id
	return id, nil
}

func (f *fakeResolver) Reset(_ context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.resets++
	id := "sess-" + key + "-new"
	f.ids[key] = id
	return id, nil
}

type fakeStore struct {
	mu      sync.Mutex
	states  map[string]*statex.ConversationState
	saveErr error
	saves   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{states: map[string]*statex.ConversationState{}}
}

func (f *fakeStore) Load(_ context.Context, sessionID string) (*statex.ConversationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[sessionID]
	if !ok {
		return nil, statex.ErrStateNotFound
	}
	return st.Clone(), nil
}

func (f *fakeStore) Save(_ context.Context, st *statex.ConversationState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.states[st.SessionID] = st.Clone()
	return nil
}

func (f *fakeStore) Delete(context.Context, string) error { return nil }

type fakeRouter struct {
	decision contractx.Decision
	err      error
	seen     []string
}

func (f *fakeRouter) Decide(_ context.Context, st *statex.ConversationState) (contractx.Decision, error) {
	f.seen = append(f.seen, st.UserInput)
	return f.decision, f.err
}

type fakeHandler struct {
	reply string
	err   error
	calls int

	// gate, when set, holds the handler until it is closed.
	gate chan struct{}
}

func (f *fakeHandler) Handle(context.Context, *statex.ConversationState) (statex.Delta, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.calls++
	if f.err != nil {
		return statex.Delta{}, f.err
	}
	return statex.Delta{
		Messages:        []*schema.Message{schema.AssistantMessage(f.reply, nil)},
		RoutingDecision: statex.String(statex.RouteEnd),
	}, nil
}

type fakeRegistry struct {
	router   *fakeRouter
	handlers map[contractx.Route]contractx.Handler
}

func (f *fakeRegistry) Router() contractx.Router { return f.router }

func (f *fakeRegistry) Handler(route contractx.Route) (contractx.Handler, bool) {
	h, ok := f.handlers[route]
	return h, ok
}

type fixture struct {
	orch     *Orchestrator
	store    *fakeStore
	router   *fakeRouter
	advisor  *fakeHandler
	resolver *fakeResolver
	locker   *sessionx.MemoryLocker
}

func newFixture(t *testing.T, dec contractx.Decision) *fixture {
	t.Helper()

	f := &fixture{
		store:    newFakeStore(),
		router:   &fakeRouter{decision: dec},
		advisor:  &fakeHandler{reply: "Khóa Python học 8 tuần ạ."},
		resolver: &fakeResolver{ids: map[string]string{}},
		locker:   sessionx.NewMemoryLocker(),
	}
	orch, err := New(Deps{
		Resolver: f.resolver,
		Locker:   f.locker,
		Store:    f.store,
		Registry: &fakeRegistry{
			router:   f.router,
			handlers: map[contractx.Route]contractx.Handler{contractx.RouteAdvisor: f.advisor},
		},
	}, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.orch = orch
	return f
}

func TestRunTurnSyncHandlerReply(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.Decision{Next: contractx.RouteAdvisor})
	reply, sessionID, err := f.orch.RunTurnSync(context.Background(), "chat-1", "khóa python học bao lâu")
	if err != nil {
		t.Fatalf("RunTurnSync() error = %v", err)
	}
	if reply != "Khóa Python học 8 tuần ạ." {
		t.Fatalf("unexpected reply %q", reply)
	}
	if sessionID != "sess-chat-1" {
		t.Fatalf("unexpected session id %q", sessionID)
	}

	saved := f.store.states[sessionID]
	if saved == nil {
		t.Fatal("state was not checkpointed")
	}
	if len(saved.Messages) != 2 || saved.Messages[0].Role != schema.User {
		t.Fatalf("expected user message then reply, got %#v", saved.Messages)
	}
	if saved.ConversationID != "chat-1" || saved.RoutingDecision != statex.RouteEnd {
		t.Fatalf("unexpected saved state: %#v", saved)
	}
}

func TestRunTurnKeepsHistoryAcrossTurns(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.Decision{Next: contractx.RouteAdvisor})
	for _, input := range []string{"xin chào", "khóa python"} {
		if _, _, err := f.orch.RunTurnSync(context.Background(), "chat-1", input); err != nil {
			t.Fatalf("RunTurnSync(%q) error = %v", input, err)
		}
	}
	saved := f.store.states["sess-chat-1"]
	if len(saved.Messages) != 4 {
		t.Fatalf("messages should accumulate across turns, got %d", len(saved.Messages))
	}
	if saved.UserInput != "khóa python" {
		t.Fatalf("user input should be last write, got %q", saved.UserInput)
	}
}

func TestRunTurnEndSkipsHandler(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.Decision{Next: contractx.RouteEnd, ClosingMessage: "Dạ em chào anh/chị ạ!"})
	reply, _, err := f.orch.RunTurnSync(context.Background(), "chat-1", "cảm ơn em")
	if err != nil {
		t.Fatalf("RunTurnSync() error = %v", err)
	}
	if reply != "Dạ em chào anh/chị ạ!" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if f.advisor.calls != 0 {
		t.Fatalf("handler should not run on end, ran %d times", f.advisor.calls)
	}
	if f.store.saves != 1 {
		t.Fatalf("end should still checkpoint once, saved %d", f.store.saves)
	}
}

func TestRunTurnDecisionFailureSavesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.Decision{})
	f.router.err = contractx.ErrSchemaViolation

	_, _, err := f.orch.RunTurnSync(context.Background(), "chat-1", "xin chào")
	if errx.KindOf(err) != errx.KindDecision {
		t.Fatalf("expected decision error, got %v", err)
	}
	if f.store.saves != 0 {
		t.Fatalf("no state should be persisted, saved %d", f.store.saves)
	}
}

func TestRunTurnHandlerFailureAbortsTurn(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.Decision{Next: contractx.RouteAdvisor})
	f.advisor.err = errx.Upstream(errors.New("catalog down"), "search courses")

	_, _, err := f.orch.RunTurnSync(context.Background(), "chat-1", "khóa python")
	if errx.KindOf(err) != errx.KindUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if f.store.saves != 0 {
		t.Fatalf("aborted turn must not checkpoint, saved %d", f.store.saves)
	}
}

func TestRunTurnRejectsConcurrentTurn(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.Decision{Next: contractx.RouteAdvisor})
	release, err := f.locker.Acquire(context.Background(), "sess-chat-1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	_, sessionID, err := f.orch.RunTurn(context.Background(), "chat-1", "xin chào")
	if !errors.Is(err, contractx.ErrTurnInProgress) {
		t.Fatalf("expected ErrTurnInProgress, got %v", err)
	}
	if sessionID != "sess-chat-1" {
		t.Fatalf("session id should still be reported, got %q", sessionID)
	}

	release(context.Background())
	if _, _, err := f.orch.RunTurnSync(context.Background(), "chat-1", "xin chào"); err != nil {
		t.Fatalf("turn after release failed: %v", err)
	}
}

func TestRunTurnStreamsSteps(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.Decision{Next: contractx.RouteAdvisor})
	src, _, err := f.orch.RunTurn(context.Background(), "chat-1", "khóa python")
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}

	var nodes []string
	for {
		step, err := src.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		nodes = append(nodes, step.Node)
	}
	if len(nodes) != 2 || nodes[0] != "apply_route" || nodes[1] != "dispatch_specialist" {
		t.Fatalf("unexpected step order %v", nodes)
	}
}

func TestRunTurnStopsAfterConsumerClose(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.Decision{Next: contractx.RouteAdvisor})
	f.advisor.gate = make(chan struct{})

	src, _, err := f.orch.RunTurn(context.Background(), "chat-1", "khóa python")
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	step, err := src.Recv()
	if err != nil || step.Node != "apply_route" {
		t.Fatalf("expected apply_route step, got %#v, %v", step, err)
	}

	src.Close()
	close(f.advisor.gate)

	for {
		_, err := src.Recv()
		if err == io.EOF {
			t.Fatal("closed turn must not finish cleanly")
		}
		if err != nil {
			break
		}
	}
	f.store.mu.Lock()
	saves := f.store.saves
	f.store.mu.Unlock()
	if saves != 0 {
		t.Fatalf("closed turn must not checkpoint, saved %d", saves)
	}

	release, err := f.locker.Acquire(context.Background(), "sess-chat-1")
	if err != nil {
		t.Fatalf("lock should be released after the turn stops: %v", err)
	}
	release(context.Background())
}

func TestRestartTurnGreetsWithNewSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.Decision{Next: contractx.RouteAdvisor})
	src, sessionID, err := f.orch.RestartTurn(context.Background(), "chat-1")
	if err != nil {
		t.Fatalf("RestartTurn() error = %v", err)
	}
	reply, err := streamx.Collect(src)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if reply != Greeting {
		t.Fatalf("unexpected greeting %q", reply)
	}
	if sessionID != "sess-chat-1-new" || f.resolver.resets != 1 {
		t.Fatalf("restart should mint a new session, got %q", sessionID)
	}
	if len(f.router.seen) != 0 {
		t.Fatal("restart must not consult the router")
	}
}

func TestRunTurnResolverFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.Decision{Next: contractx.RouteAdvisor})
	f.resolver.err = errx.Persistence(errors.New("redis down"), "resolve session")

	if _, _, err := f.orch.RunTurn(context.Background(), "chat-1", "hi"); errx.KindOf(err) != errx.KindPersistence {
		t.Fatalf("expected persistence error, got %v", err)
	}
}
