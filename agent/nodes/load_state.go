package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

// LoadState loads the checkpoint (or a fresh state) and overlays this turn's input.
func LoadState(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	st, err := statex.LoadOrInit(ctx, store, in.SessionID)
	if err != nil {
		logx.Error().Err(err).Str("session_id", in.SessionID).Msg("failed to load conversation state")
		return nil, err
	}

	overlay := statex.Delta{UserInput: statex.String(in.UserInput)}
	if st.ConversationID == "" && in.ConversationKey != "" {
		overlay.ConversationID = statex.String(in.ConversationKey)
	}
	in.State = statex.Merge(st, overlay)
	return in, nil
}
