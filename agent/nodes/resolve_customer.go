package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

// ResolveCustomer upserts the customer by chat id when the identity is still unknown.
// A directory failure only degrades the turn; routing continues without identity.
func ResolveCustomer(ctx context.Context, in *GraphState, directory contractx.CustomerDirectory) (*GraphState, error) {
	if in == nil || in.State == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}
	if directory == nil || in.State.CustomerID != 0 {
		return in, nil
	}
	chatID := in.State.ConversationID
	if chatID == "" {
		chatID = in.ConversationKey
	}
	if chatID == "" {
		return in, nil
	}

	c, err := directory.UpsertByChatID(ctx, chatID)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", in.SessionID).Msg("customer lookup failed, continuing without identity")
		return in, nil
	}
	in.State = statex.Merge(in.State, identityDelta(in.State, c))
	return in, nil
}

// identityDelta fills identity fields that are known by the directory but not by the state.
func identityDelta(st *statex.ConversationState, c contractx.Customer) statex.Delta {
	d := statex.Delta{CustomerID: statex.Int64(c.StudentID)}
	if st.Name == "" && c.Name != "" {
		d.Name = statex.String(c.Name)
	}
	if st.Phone == "" && c.Phone != "" {
		d.Phone = statex.String(c.Phone)
	}
	if st.Email == "" && c.Email != "" {
		d.Email = statex.String(c.Email)
	}
	return d
}
