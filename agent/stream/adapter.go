package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	"github.com/tanpawarit/Chative-Course-Concierge/pkg/errx"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

const DoneMarker = "[DONE]"

// BusyMessage is shown when another turn holds the session.
const BusyMessage = "Dạ em đang xử lý tin nhắn trước của anh/chị, anh/chị vui lòng đợi trong giây lát ạ."

// FrameWriter writes one complete SSE frame and flushes it.
type FrameWriter func(frame []byte) error

type contentFrame struct {
	Content string `json:"content"`
}

type errorFrame struct {
	Error     string `json:"error"`
	SessionID string `json:"session_id"`
}

// Relay pulls steps from src and writes them as SSE frames. Assistant content equal to
// the last emitted content is skipped. Exactly one [DONE] frame ends the stream unless
// ctx is cancelled or a write fails first, in which case the source is closed and no
// terminator is written.
func Relay(ctx context.Context, src *Source, sessionID string, write FrameWriter) error {
	stop := context.AfterFunc(ctx, src.Close)
	defer stop()

	var last string
	for {
		if err := ctx.Err(); err != nil {
			return cancelled(src, sessionID, err)
		}

		step, err := src.Recv()
		// The producer may observe the cancellation before the AfterFunc closes src.
		if cerr := ctx.Err(); cerr != nil {
			return cancelled(src, sessionID, cerr)
		}
		if src.Cancelled() {
			return cancelled(src, sessionID, context.Canceled)
		}
		if errors.Is(err, io.EOF) {
			return write(frame([]byte(DoneMarker)))
		}
		if err != nil {
			logx.Error().Err(err).Str("session_id", sessionID).Msg("turn failed")
			payload, _ := json.Marshal(errorFrame{Error: ErrorText(err), SessionID: sessionID})
			if werr := write(frame(payload)); werr != nil {
				src.Close()
				return werr
			}
			return write(frame([]byte(DoneMarker)))
		}

		for _, m := range step.Messages {
			if !isReply(m) || m.Content == last {
				continue
			}
			payload, err := json.Marshal(contentFrame{Content: m.Content})
			if err != nil {
				return err
			}
			if err := write(frame(payload)); err != nil {
				src.Close()
				return err
			}
			last = m.Content
		}
	}
}

// ErrorText is the user-safe text for a failed turn.
func ErrorText(err error) string {
	if errors.Is(err, contractx.ErrTurnInProgress) {
		return BusyMessage
	}
	return errx.PublicMessage(err)
}

func cancelled(src *Source, sessionID string, err error) error {
	src.Close()
	logx.Info().Str("session_id", sessionID).Msg("stream cancelled by consumer")
	return err
}

func frame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+8)
	out = append(out, "data: "...)
	out = append(out, payload...)
	return append(out, '\n', '\n')
}
