package orchestratornode

import (
	"fmt"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
)

func ApplyStateUpdates(in *GraphState) (*GraphState, error) {
	if in == nil || in.State == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}
	if in.Delta.RoutingDecision == nil {
		// handlers are single shot; the turn always ends after one reply
		in.Delta.RoutingDecision = statex.String(statex.RouteEnd)
	}
	in.State = statex.Merge(in.State, in.Delta)
	in.Delta = statex.Delta{}
	return in, nil
}
