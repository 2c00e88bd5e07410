package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	streamx "github.com/tanpawarit/Chative-Course-Concierge/agent/stream"
	"github.com/tanpawarit/Chative-Course-Concierge/pkg/errx"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

const maxBodyBytes = 64 << 10

// TurnRunner is the slice of the orchestrator the HTTP layer needs.
type TurnRunner interface {
	RunTurn(ctx context.Context, conversationKey, userInput string) (*streamx.Source, string, error)
	RunTurnSync(ctx context.Context, conversationKey, userInput string) (string, string, error)
	RestartTurn(ctx context.Context, conversationKey string) (*streamx.Source, string, error)
}

type ChatRequest struct {
	ConversationKey string `json:"conversation_key"`
	UserInput       string `json:"user_input"`
	// Stream defaults to true.
	Stream *bool `json:"stream,omitempty"`
}

func (r ChatRequest) streaming() bool {
	return r.Stream == nil || *r.Stream
}

type ChatResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	SessionID string `json:"session_id,omitempty"`
}

type Server struct {
	runner TurnRunner
	mux    *http.ServeMux
}

func NewServer(runner TurnRunner) *Server {
	s := &Server{runner: runner, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := parseChatRequest(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if !req.streaming() {
		s.replyJSON(w, r, req)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		logx.Error().Msg("streaming not supported by response writer")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming not supported"})
		return
	}

	var (
		src       *streamx.Source
		sessionID string
	)
	if isRestart(req.UserInput) {
		src, sessionID, err = s.runner.RestartTurn(r.Context(), req.ConversationKey)
	} else {
		src, sessionID, err = s.runner.RunTurn(r.Context(), req.ConversationKey, req.UserInput)
	}
	if err != nil {
		src = streamx.Failed(err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err = streamx.Relay(r.Context(), src, sessionID, func(frame []byte) error {
		if _, err := w.Write(frame); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("stream ended early")
	}
}

func (s *Server) replyJSON(w http.ResponseWriter, r *http.Request, req ChatRequest) {
	var (
		reply     string
		sessionID string
		err       error
	)
	if isRestart(req.UserInput) {
		var src *streamx.Source
		src, sessionID, err = s.runner.RestartTurn(r.Context(), req.ConversationKey)
		if err == nil {
			reply, err = streamx.Collect(src)
		}
	} else {
		reply, sessionID, err = s.runner.RunTurnSync(r.Context(), req.ConversationKey, req.UserInput)
	}
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("turn failed")
		writeJSON(w, statusFor(err), errorResponse{Error: streamx.ErrorText(err), SessionID: sessionID})
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Reply: reply, SessionID: sessionID})
}

func parseChatRequest(r io.Reader) (ChatRequest, error) {
	var req ChatRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return ChatRequest{}, errors.New("invalid JSON body")
	}
	req.ConversationKey = strings.TrimSpace(req.ConversationKey)
	req.UserInput = strings.TrimSpace(req.UserInput)
	if req.ConversationKey == "" {
		return ChatRequest{}, errors.New("conversation_key is required")
	}
	if req.UserInput == "" {
		return ChatRequest{}, errors.New("user_input is required")
	}
	return req, nil
}

func isRestart(input string) bool {
	input = strings.ToLower(input)
	return strings.Contains(input, "/start") || strings.Contains(input, "/restart")
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, contractx.ErrTurnInProgress):
		return http.StatusConflict
	case errors.Is(err, contractx.ErrValidation):
		return http.StatusBadRequest
	default:
		return errx.StatusOf(err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logx.Warn().Err(err).Msg("failed to write json response")
	}
}
