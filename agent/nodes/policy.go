package orchestratornode

import (
	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
)

const (
	NodeValidateRequest   = "validate_request"
	NodeLoadState         = "load_state"
	NodeResolveCustomer   = "resolve_customer"
	NodeRoute             = "route"
	NodeApplyRoute        = "apply_route"
	NodeDispatch          = "dispatch_specialist"
	NodeApplyStateUpdates = "apply_state_updates"
	NodeSaveState         = "validate_and_save_state"
	NodeFinalizeReply     = "finalize_reply"
)

// FallbackClosingMessage is used when the router ends the turn without a closing line.
const FallbackClosingMessage = "Cảm ơn anh/chị đã quan tâm ạ. Hẹn gặp lại anh/chị sau!"

// NextAfterRoute picks the node that follows apply_route: ending skips the handlers.
func NextAfterRoute(in *GraphState) string {
	if in == nil || in.Decision.Next == contractx.RouteEnd {
		return NodeSaveState
	}
	return NodeDispatch
}
