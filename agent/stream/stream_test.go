package stream

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	"github.com/tanpawarit/Chative-Course-Concierge/pkg/errx"
)

func assistantStep(content string) contractx.Step {
	return contractx.Step{Node: "dispatch_specialist", Messages: []*schema.Message{schema.AssistantMessage(content, nil)}}
}

func collectFrames(frames *[]string) FrameWriter {
	return func(frame []byte) error {
		*frames = append(*frames, string(frame))
		return nil
	}
}

func TestRelayDedupsConsecutiveContent(t *testing.T) {
	t.Parallel()

	src := Produce(context.Background(), func(ctx context.Context, emit EmitFunc) error {
		for _, c := range []string{"a", "a", "b", "b", "a"} {
			if !emit(assistantStep(c)) {
				return ctx.Err()
			}
		}
		return nil
	})

	var frames []string
	if err := Relay(context.Background(), src, "sess-1", collectFrames(&frames)); err != nil {
		t.Fatalf("Relay() error = %v", err)
	}

	want := []string{
		"data: {\"content\":\"a\"}\n\n",
		"data: {\"content\":\"b\"}\n\n",
		"data: {\"content\":\"a\"}\n\n",
		"data: [DONE]\n\n",
	}
	if strings.Join(frames, "") != strings.Join(want, "") {
		t.Fatalf("unexpected frames:\n%q\nwant:\n%q", frames, want)
	}
}

func TestRelaySkipsNonAssistantMessages(t *testing.T) {
	t.Parallel()

	src := Produce(context.Background(), func(ctx context.Context, emit EmitFunc) error {
		emit(contractx.Step{Node: "apply_route", Messages: []*schema.Message{schema.UserMessage("xin chào")}})
		emit(contractx.Step{Node: "dispatch_specialist", Messages: []*schema.Message{
			schema.AssistantMessage("", []schema.ToolCall{{ID: "call_1"}}),
			schema.ToolMessage("kết quả", "call_1"),
			schema.AssistantMessage("Dạ em chào anh/chị", nil),
		}})
		return nil
	})

	var frames []string
	if err := Relay(context.Background(), src, "sess-1", collectFrames(&frames)); err != nil {
		t.Fatalf("Relay() error = %v", err)
	}
	if len(frames) != 2 || !strings.Contains(frames[0], "Dạ em chào anh/chị") {
		t.Fatalf("unexpected frames: %q", frames)
	}
}

func TestRelayCancellationSuppressesDone(t *testing.T) {
	t.Parallel()

	producerDone := make(chan struct{})
	src := Produce(context.Background(), func(ctx context.Context, emit EmitFunc) error {
		defer close(producerDone)
		for i := 0; ; i++ {
			if !emit(assistantStep(strings.Repeat("x", i+1))) {
				return ctx.Err()
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var frames []string
	err := Relay(ctx, src, "sess-1", func(frame []byte) error {
		frames = append(frames, string(frame))
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for _, f := range frames {
		if strings.Contains(f, DoneMarker) {
			t.Fatalf("terminator must not be written after cancellation: %q", frames)
		}
	}

	select {
	case <-producerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("producer was not stopped by the cancellation")
	}
	if !src.Cancelled() {
		t.Fatal("source should report cancellation")
	}
}

func TestRelayCancelWhileWaitingWritesNoTerminator(t *testing.T) {
	t.Parallel()

	for i := 0; i < 200; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		src := Produce(ctx, func(ctx context.Context, emit EmitFunc) error {
			emit(assistantStep("a"))
			<-ctx.Done()
			return ctx.Err()
		})

		var frames []string
		err := Relay(ctx, src, "sess-1", func(frame []byte) error {
			frames = append(frames, string(frame))
			go func() {
				time.Sleep(time.Millisecond)
				cancel()
			}()
			return nil
		})
		cancel()

		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run %d: expected context.Canceled, got %v", i, err)
		}
		if len(frames) != 1 {
			t.Fatalf("run %d: only the content frame may be written, got %q", i, frames)
		}
	}
}

func TestRelayErrorFrameThenDone(t *testing.T) {
	t.Parallel()

	src := Produce(context.Background(), func(ctx context.Context, emit EmitFunc) error {
		emit(assistantStep("a"))
		return errx.Persistence(errors.New("redis down"), "save state")
	})

	var frames []string
	if err := Relay(context.Background(), src, "sess-9", collectFrames(&frames)); err != nil {
		t.Fatalf("Relay() error = %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected content, error and done frames, got %q", frames)
	}
	if !strings.Contains(frames[1], `"session_id":"sess-9"`) || !strings.Contains(frames[1], `"error":`) {
		t.Fatalf("unexpected error frame %q", frames[1])
	}
	if frames[2] != "data: [DONE]\n\n" {
		t.Fatalf("missing terminator, got %q", frames[2])
	}
}

func TestFailedSourceReportsBusy(t *testing.T) {
	t.Parallel()

	var frames []string
	if err := Relay(context.Background(), Failed(contractx.ErrTurnInProgress), "sess-1", collectFrames(&frames)); err != nil {
		t.Fatalf("Relay() error = %v", err)
	}
	if len(frames) != 2 || !strings.Contains(frames[0], BusyMessage) {
		t.Fatalf("unexpected frames %q", frames)
	}
}

func TestCollectReturnsLastReply(t *testing.T) {
	t.Parallel()

	src := Produce(context.Background(), func(ctx context.Context, emit EmitFunc) error {
		emit(assistantStep("first"))
		emit(assistantStep("final"))
		return nil
	})
	reply, err := Collect(src)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if reply != "final" {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestProduceRecoversPanic(t *testing.T) {
	t.Parallel()

	src := Produce(context.Background(), func(context.Context, EmitFunc) error {
		panic("boom")
	})
	if _, err := Collect(src); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected panic to surface as error, got %v", err)
	}
}
