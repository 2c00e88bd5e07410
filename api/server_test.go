package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	streamx "github.com/tanpawarit/Chative-Course-Concierge/agent/stream"
)

type fakeRunner struct {
	replies  []string
	err      error
	restarts int
	inputs   []string
}

func (f *fakeRunner) source(replies []string) *streamx.Source {
	return streamx.Produce(context.Background(), func(ctx context.Context, emit streamx.EmitFunc) error {
		for _, r := range replies {
			emit(contractx.Step{Node: "dispatch_specialist", Messages: []*schema.Message{schema.AssistantMessage(r, nil)}})
		}
		return nil
	})
}

func (f *fakeRunner) RunTurn(_ context.Context, key, input string) (*streamx.Source, string, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, "sess-" + key, f.err
	}
	return f.source(f.replies), "sess-" + key, nil
}

func (f *fakeRunner) RunTurnSync(ctx context.Context, key, input string) (string, string, error) {
	src, id, err := f.RunTurn(ctx, key, input)
	if err != nil {
		return "", id, err
	}
	reply, err := streamx.Collect(src)
	return reply, id, err
}

func (f *fakeRunner) RestartTurn(_ context.Context, key string) (*streamx.Source, string, error) {
	f.restarts++
	return f.source([]string{"Chào anh/chị"}), "sess-" + key + "-new", nil
}

func postChat(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestChatStreamsFramesAndDone(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeRunner{replies: []string{"Dạ", "Dạ", "Khóa Python 8 tuần ạ"}})
	rec := postChat(t, srv, `{"conversation_key":"chat-1","user_input":"khóa python"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	want := "data: {\"content\":\"Dạ\"}\n\n" +
		"data: {\"content\":\"Khóa Python 8 tuần ạ\"}\n\n" +
		"data: [DONE]\n\n"
	if rec.Body.String() != want {
		t.Fatalf("unexpected body:\n%q\nwant:\n%q", rec.Body.String(), want)
	}
}

func TestChatNonStreamingReturnsReply(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeRunner{replies: []string{"Xin chào", "Khóa Python 8 tuần ạ"}})
	rec := postChat(t, srv, `{"conversation_key":"chat-1","user_input":"khóa python","stream":false}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var resp ChatResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Reply != "Khóa Python 8 tuần ạ" || resp.SessionID != "sess-chat-1" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestChatBusySessionNonStreamingIsConflict(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeRunner{err: contractx.ErrTurnInProgress})
	rec := postChat(t, srv, `{"conversation_key":"chat-1","user_input":"hi","stream":false}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestChatBusySessionStreamsErrorThenDone(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeRunner{err: contractx.ErrTurnInProgress})
	rec := postChat(t, srv, `{"conversation_key":"chat-1","user_input":"hi"}`)

	body := rec.Body.String()
	if !strings.Contains(body, `"session_id":"sess-chat-1"`) || !strings.Contains(body, streamx.BusyMessage) {
		t.Fatalf("missing error frame: %q", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") || strings.Count(body, "[DONE]") != 1 {
		t.Fatalf("expected exactly one terminator: %q", body)
	}
}

func TestChatRestartCommand(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{replies: []string{"unused"}}
	srv := NewServer(runner)
	rec := postChat(t, srv, `{"conversation_key":"chat-1","user_input":"/restart"}`)

	if runner.restarts != 1 || len(runner.inputs) != 0 {
		t.Fatalf("restart should bypass the turn graph, restarts=%d inputs=%v", runner.restarts, runner.inputs)
	}
	if !strings.Contains(rec.Body.String(), "Chào anh/chị") {
		t.Fatalf("greeting not streamed: %q", rec.Body.String())
	}
}

func TestChatRejectsInvalidBody(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeRunner{})
	for _, body := range []string{`not json`, `{"conversation_key":"","user_input":"hi"}`, `{"conversation_key":"c","user_input":"  "}`} {
		rec := postChat(t, srv, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	if got := statusFor(errors.New("boom")); got != http.StatusInternalServerError {
		t.Fatalf("unexpected status for unknown error: %d", got)
	}
	if got := statusFor(contractx.ErrValidation); got != http.StatusBadRequest {
		t.Fatalf("unexpected status for validation error: %d", got)
	}
}
