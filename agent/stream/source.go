package stream

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
)

// EmitFunc hands one step to the consumer. It blocks until the consumer pulls the step
// and returns false once the consumer has closed the source.
type EmitFunc func(step contractx.Step) bool

// ProduceFunc drives one turn. Its context is cancelled when the consumer closes the source.
type ProduceFunc func(ctx context.Context, emit EmitFunc) error

// Source is a single-producer, single-consumer stream of turn steps.
type Source struct {
	steps  chan contractx.Step
	ctx    context.Context
	cancel context.CancelFunc

	// err is written before steps is closed and read only after.
	err error

	closeOnce sync.Once
	cancelled atomic.Bool
}

// Produce starts fn in its own goroutine and returns the consumer side.
func Produce(parent context.Context, fn ProduceFunc) *Source {
	ctx, cancel := context.WithCancel(parent)
	s := &Source{
		steps:  make(chan contractx.Step),
		ctx:    ctx,
		cancel: cancel,
	}
	go s.run(fn)
	return s
}

// Failed returns a source that yields only err.
func Failed(err error) *Source {
	return Produce(context.Background(), func(context.Context, EmitFunc) error {
		return err
	})
}

func (s *Source) run(fn ProduceFunc) {
	defer close(s.steps)
	defer s.cancel()
	defer func() {
		if p := recover(); p != nil {
			s.err = fmt.Errorf("turn panic: %v", p)
		}
	}()
	s.err = fn(s.ctx, s.emit)
}

func (s *Source) emit(step contractx.Step) bool {
	if s.ctx.Err() != nil {
		return false
	}
	select {
	case s.steps <- step:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Recv blocks until the next step. It returns io.EOF after a clean finish and the
// producer's error otherwise.
func (s *Source) Recv() (contractx.Step, error) {
	step, ok := <-s.steps
	if ok {
		return step, nil
	}
	if s.err != nil {
		return contractx.Step{}, s.err
	}
	return contractx.Step{}, io.EOF
}

// Close signals the producer to stop. It is safe to call more than once and from any goroutine.
func (s *Source) Close() {
	s.closeOnce.Do(func() {
		s.cancelled.Store(true)
		s.cancel()
	})
}

// Cancelled reports whether the consumer closed the source.
func (s *Source) Cancelled() bool {
	return s.cancelled.Load()
}

// Collect drains the source and returns the last assistant content it carried.
func Collect(s *Source) (string, error) {
	defer s.Close()
	var reply string
	for {
		step, err := s.Recv()
		if err == io.EOF {
			return reply, nil
		}
		if err != nil {
			return "", err
		}
		for _, m := range step.Messages {
			if isReply(m) {
				reply = m.Content
			}
		}
	}
}

func isReply(m *schema.Message) bool {
	return m != nil && m.Role == schema.Assistant && strings.TrimSpace(m.Content) != ""
}
