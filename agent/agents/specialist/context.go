package specialist

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
)

const historyLimit = 20

// conversationHistory keeps the last user and assistant turns that carry text.
// Tool traffic from earlier turns is not replayed.
func conversationHistory(msgs []*schema.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil || strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch {
		case m.Role == schema.User:
			out = append(out, schema.UserMessage(m.Content))
		case m.Role == schema.Assistant && len(m.ToolCalls) == 0:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		}
	}
	if len(out) > historyLimit {
		out = out[len(out)-historyLimit:]
	}
	return out
}

func transcript(msgs []*schema.Message) []string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return lines
}

func cartView(st *statex.ConversationState) []map[string]any {
	ids := make([]int64, 0, len(st.Cart))
	for id := range st.Cart {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		it := st.Cart[id]
		row := map[string]any{"course_id": id, "price": it.Price, "subtotal": it.Subtotal}
		if c, ok := st.SeenItems[id]; ok {
			row["name"] = c.Name
		}
		out = append(out, row)
	}
	return out
}

func ordersView(st *statex.ConversationState) []statex.Order {
	ids := make([]int64, 0, len(st.Orders))
	for id := range st.Orders {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]statex.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, st.Orders[id])
	}
	return out
}

func seenView(st *statex.ConversationState) []statex.SeenItem {
	ids := make([]int64, 0, len(st.SeenItems))
	for id := range st.SeenItems {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]statex.SeenItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, st.SeenItems[id])
	}
	return out
}

// handlerContext renders the state slice a handler may see.
func handlerContext(route contractx.Route, st *statex.ConversationState) string {
	view := map[string]any{
		"customer": map[string]any{
			"name":  st.Name,
			"phone": st.Phone,
			"email": st.Email,
		},
		"seen_items": seenView(st),
	}
	switch route {
	case contractx.RouteEnrollment:
		view["cart"] = cartView(st)
		view["payment_method"] = st.PaymentMethod
	case contractx.RouteModification:
		view["orders"] = ordersView(st)
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return "Thông tin khách hàng: không khả dụng."
	}
	return "Thông tin hiện có về khách (JSON):\n" + string(raw)
}
