package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	"github.com/tanpawarit/Chative-Course-Concierge/pkg/errx"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

// DispatchSpecialist runs the chosen handler once. Its delta is merged by apply_state_updates.
func DispatchSpecialist(ctx context.Context, in *GraphState, registry contractx.Registry) (*GraphState, error) {
	if in == nil || in.State == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}

	handler, ok := registry.Handler(in.Decision.Next)
	if !ok {
		return nil, errx.Decision(fmt.Errorf("%w: no handler for route=%q", contractx.ErrUnknownRoute, in.Decision.Next))
	}

	delta, err := handler.Handle(ctx, in.State)
	if err != nil {
		logx.Error().
			Err(err).
			Str("session_id", in.SessionID).
			Str("route", string(in.Decision.Next)).
			Msg("handler failed")
		return nil, err
	}

	in.Delta = delta
	if err := in.emit(NodeDispatch, delta.Messages); err != nil {
		return nil, err
	}
	return in, nil
}
