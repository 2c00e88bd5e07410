package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	"github.com/tanpawarit/Chative-Course-Concierge/pkg/errx"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

// Route asks the router for the next step. Any failure aborts the turn as a decision error.
func Route(ctx context.Context, in *GraphState, router contractx.Router) (*GraphState, error) {
	if in == nil || in.State == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}

	dec, err := router.Decide(ctx, in.State)
	if err != nil {
		logx.Error().Err(err).Str("session_id", in.SessionID).Msg("routing decision failed")
		return nil, errx.Decision(err)
	}

	logx.Info().
		Str("session_id", in.SessionID).
		Str("route", string(dec.Next)).
		Msg("route decided")

	in.Decision = dec
	return in, nil
}
