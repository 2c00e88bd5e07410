package delivery

import (
	"context"
	"time"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	"github.com/tanpawarit/Chative-Course-Concierge/pkg/errx"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

const DefaultRetryDelay = 5 * time.Second

// Retrier runs a side-channel call, retries it once after a fixed delay and then gives up.
// Failures are logged and never returned.
type Retrier struct {
	delay time.Duration
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Retrier)

// WithSleep replaces the wait between attempts, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Retrier) {
		if fn != nil {
			r.sleep = fn
		}
	}
}

func NewRetrier(delay time.Duration, opts ...Option) *Retrier {
	if delay < 0 {
		delay = DefaultRetryDelay
	}
	r := &Retrier{delay: delay, sleep: sleepCtx}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do reports whether op eventually succeeded.
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) error) bool {
	err := fn(ctx)
	if err == nil {
		return true
	}
	logx.Warn().Err(err).Str("op", op).Dur("retry_in", r.delay).Msg("delivery failed, retrying once")

	if serr := r.sleep(ctx, r.delay); serr != nil {
		logx.Error().Err(errx.Delivery(err, op)).Str("op", op).Msg("delivery abandoned")
		return false
	}
	if err = fn(ctx); err != nil {
		logx.Error().Err(errx.Delivery(err, op)).Str("op", op).Msg("delivery failed after retry")
		return false
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// BestEffortNotifier never lets a notification failure reach the turn.
type BestEffortNotifier struct {
	next  contractx.Notifier
	retry *Retrier
}

func NewNotifier(next contractx.Notifier, retry *Retrier) *BestEffortNotifier {
	return &BestEffortNotifier{next: next, retry: retry}
}

func (n *BestEffortNotifier) NotifyEscalation(ctx context.Context, alert contractx.EscalationAlert) error {
	n.retry.Do(ctx, "notify_escalation", func(ctx context.Context) error {
		return n.next.NotifyEscalation(ctx, alert)
	})
	return nil
}

func (n *BestEffortNotifier) NotifyCourseChange(ctx context.Context, alert contractx.CourseChangeAlert) error {
	n.retry.Do(ctx, "notify_course_change", func(ctx context.Context) error {
		return n.next.NotifyCourseChange(ctx, alert)
	})
	return nil
}

// BestEffortSheets is the SheetLogger counterpart of BestEffortNotifier.
type BestEffortSheets struct {
	next  contractx.SheetLogger
	retry *Retrier
}

func NewSheets(next contractx.SheetLogger, retry *Retrier) *BestEffortSheets {
	return &BestEffortSheets{next: next, retry: retry}
}

func (s *BestEffortSheets) AppendComplaint(ctx context.Context, row contractx.ComplaintRow) error {
	s.retry.Do(ctx, "sheet_append_complaint", func(ctx context.Context) error {
		return s.next.AppendComplaint(ctx, row)
	})
	return nil
}

func (s *BestEffortSheets) AppendOrder(ctx context.Context, row contractx.OrderRow) error {
	s.retry.Do(ctx, "sheet_append_order", func(ctx context.Context) error {
		return s.next.AppendOrder(ctx, row)
	})
	return nil
}

// Discard drops every delivery. Used when a side channel is not configured.
type Discard struct{}

func (Discard) NotifyEscalation(context.Context, contractx.EscalationAlert) error     { return nil }
func (Discard) NotifyCourseChange(context.Context, contractx.CourseChangeAlert) error { return nil }
func (Discard) AppendComplaint(context.Context, contractx.ComplaintRow) error         { return nil }
func (Discard) AppendOrder(context.Context, contractx.OrderRow) error                 { return nil }
