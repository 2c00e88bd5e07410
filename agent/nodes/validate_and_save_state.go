package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
)

// ValidateAndSaveState checkpoints the merged state once per completed turn.
func ValidateAndSaveState(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil || in.State == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}

	in.State.Touch(in.Now)
	if err := in.State.Validate(); err != nil {
		return nil, fmt.Errorf("%w: state validation failed: %v", contractx.ErrValidation, err)
	}
	if err := store.Save(ctx, in.State); err != nil {
		return nil, err
	}
	return in, nil
}
