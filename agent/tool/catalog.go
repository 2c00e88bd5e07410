package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

const (
	ToolGetCourses         = "get_courses"
	ToolGetQnA             = "get_qna"
	ToolGetSchedule        = "get_schedule"
	ToolGetPromotions      = "get_promotions"
	ToolAddItemCart        = "add_item_cart"
	ToolCancelItemCart     = "cancel_item_cart"
	ToolAlterItemCart      = "alter_item_cart"
	ToolShowCart           = "show_cart"
	ToolModifyCustomer     = "modify_customer"
	ToolAddOrder           = "add_order"
	ToolGetCustomerOrders  = "get_customer_orders"
	ToolCancelOrder        = "cancel_order"
	ToolModifyReceiverInfo = "modify_receiver_info"
	ToolAlterItemOrder     = "alter_item_order"
	ToolAlterAdmissionDay  = "alter_admission_day"
)

// Outcome is what a tool hands back to the handler loop. A clarification carries an empty Delta.
type Outcome struct {
	Message string
	Delta   statex.Delta
}

func clarify(msg string) Outcome {
	return Outcome{Message: msg}
}

// Executor runs one tool call against the working copy of the conversation state.
// A returned error is a system failure and aborts the turn; missing input is an Outcome.
type Executor func(ctx context.Context, st *statex.ConversationState, tool string, args string) (Outcome, error)

// Deps are the external systems tools may touch.
type Deps struct {
	Customers contractx.CustomerDirectory
	Catalog   contractx.Catalog
	Orders    contractx.OrderStore
	Notifier  contractx.Notifier
	Sheets    contractx.SheetLogger
	Now       func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

type handlerFunc func(ctx context.Context, d Deps, st *statex.ConversationState, args string) (Outcome, error)

var handlers = map[string]handlerFunc{
	ToolGetCourses:         getCourses,
	ToolGetQnA:             getQnA,
	ToolGetSchedule:        getSchedule,
	ToolGetPromotions:      getPromotions,
	ToolAddItemCart:        addItemCart,
	ToolCancelItemCart:     cancelItemCart,
	ToolAlterItemCart:      alterItemCart,
	ToolShowCart:           showCart,
	ToolModifyCustomer:     modifyCustomer,
	ToolAddOrder:           addOrder,
	ToolGetCustomerOrders:  getCustomerOrders,
	ToolCancelOrder:        cancelOrder,
	ToolModifyReceiverInfo: modifyReceiverInfo,
	ToolAlterItemOrder:     alterItemOrder,
	ToolAlterAdmissionDay:  alterAdmissionDay,
}

var routeTools = map[contractx.Route][]string{
	contractx.RouteAdvisor: {
		ToolGetCourses, ToolGetQnA, ToolGetSchedule, ToolGetPromotions,
	},
	contractx.RouteEnrollment: {
		ToolGetCourses, ToolGetSchedule, ToolGetPromotions,
		ToolAddItemCart, ToolCancelItemCart, ToolAlterItemCart, ToolShowCart,
		ToolModifyCustomer, ToolAddOrder,
	},
	contractx.RouteModification: {
		ToolGetCustomerOrders, ToolCancelOrder, ToolModifyReceiverInfo,
		ToolAlterItemOrder, ToolAlterAdmissionDay, ToolGetCourses,
	},
}

// BuildForRoute returns the tool infos to bind to the route's model and the executor that serves them.
func BuildForRoute(route contractx.Route, deps Deps) ([]*schema.ToolInfo, Executor) {
	return infosForRoute(route), NewExecutor(route, deps)
}

func NewExecutor(route contractx.Route, deps Deps) Executor {
	allowed := make(map[string]struct{}, len(routeTools[route]))
	for _, name := range routeTools[route] {
		allowed[name] = struct{}{}
	}
	fallback := DefaultExecutor(route)

	return func(ctx context.Context, st *statex.ConversationState, tool string, args string) (Outcome, error) {
		h, ok := handlers[tool]
		if _, permitted := allowed[tool]; !ok || !permitted {
			return fallback(ctx, st, tool, args)
		}
		start := time.Now()
		out, err := h(ctx, deps, st, args)
		ev := logx.Info()
		if err != nil {
			ev = logx.Error().Err(err)
		}
		ev.Str("session_id", st.SessionID).
			Str("tool", tool).
			Dur("duration", time.Since(start)).
			Bool("state_changed", !out.Delta.IsEmpty()).
			Msg("tool executed")
		return out, err
	}
}

// DefaultExecutor answers calls to tools the route does not own.
func DefaultExecutor(route contractx.Route) Executor {
	return func(_ context.Context, _ *statex.ConversationState, tool string, _ string) (Outcome, error) {
		return clarify(fmt.Sprintf("tool=%s is unavailable for route=%s", tool, route)), nil
	}
}

func infosForRoute(route contractx.Route) []*schema.ToolInfo {
	names := routeTools[route]
	if len(names) == 0 {
		return nil
	}
	out := make([]*schema.ToolInfo, 0, len(names))
	for _, name := range names {
		if info, ok := toolInfos[name]; ok {
			out = append(out, info)
		}
	}
	return out
}

func params(p map[string]*schema.ParameterInfo) *schema.ParamsOneOf {
	if p == nil {
		p = map[string]*schema.ParameterInfo{}
	}
	return schema.NewParamsOneOfByParams(p)
}

var toolInfos = map[string]*schema.ToolInfo{
	ToolGetCourses: {
		Name: ToolGetCourses,
		Desc: "Tìm kiếm thông tin khóa học. Ưu tiên tìm theo tên khóa học, nếu không có kết quả sẽ tìm kiếm ngữ nghĩa.",
		ParamsOneOf: params(map[string]*schema.ParameterInfo{
			"keywords": {Type: schema.String, Desc: "Từ khóa cốt lõi: tên hoặc mô tả chính xác của khóa học khách quan tâm", Required: true},
		}),
	},
	ToolGetQnA: {
		Name:        ToolGetQnA,
		Desc:        "Tìm câu trả lời trong cơ sở dữ liệu Hỏi & Đáp cho các thắc mắc về khóa học và nội dung học.",
		ParamsOneOf: params(nil),
	},
	ToolGetSchedule: {
		Name: ToolGetSchedule,
		Desc: "Tra cứu lịch học chi tiết của một khóa học.",
		ParamsOneOf: params(map[string]*schema.ParameterInfo{
			"course_id": {Type: schema.Integer, Desc: "ID của khóa học cần xem lịch", Required: true},
		}),
	},
	ToolGetPromotions: {
		Name:        ToolGetPromotions,
		Desc:        "Liệt kê các khóa học đang có ưu đãi, khuyến mãi hoặc giảm giá.",
		ParamsOneOf: params(nil),
	},
	ToolAddItemCart: {
		Name: ToolAddItemCart,
		Desc: "Thêm một khóa học khách đã xem vào giỏ hàng.",
		ParamsOneOf: params(map[string]*schema.ParameterInfo{
			"course_id": {Type: schema.Integer, Desc: "ID khóa học, lấy từ danh sách khóa học khách đã xem", Required: true},
		}),
	},
	ToolCancelItemCart: {
		Name: ToolCancelItemCart,
		Desc: "Xoá một khóa học khỏi giỏ hàng.",
		ParamsOneOf: params(map[string]*schema.ParameterInfo{
			"course_id": {Type: schema.Integer, Desc: "ID khóa học cần xoá khỏi giỏ hàng", Required: true},
		}),
	},
	ToolAlterItemCart: {
		Name: ToolAlterItemCart,
		Desc: "Đổi một khóa học trong giỏ hàng sang khóa học khác khách đã xem.",
		ParamsOneOf: params(map[string]*schema.ParameterInfo{
			"old_course_id": {Type: schema.Integer, Desc: "ID khóa học đang có trong giỏ", Required: true},
			"new_course_id": {Type: schema.Integer, Desc: "ID khóa học muốn đổi sang", Required: true},
		}),
	},
	ToolShowCart: {
		Name:        ToolShowCart,
		Desc:        "Hiển thị giỏ hàng hiện tại kèm thông tin học viên.",
		ParamsOneOf: params(nil),
	},
	ToolModifyCustomer: {
		Name: ToolModifyCustomer,
		Desc: "Cập nhật tên, số điện thoại hoặc email của học viên.",
		ParamsOneOf: params(map[string]*schema.ParameterInfo{
			"new_name":  {Type: schema.String, Desc: "Tên mới"},
			"new_phone": {Type: schema.String, Desc: "Số điện thoại mới"},
			"new_email": {Type: schema.String, Desc: "Email mới"},
		}),
	},
	ToolAddOrder: {
		Name:        ToolAddOrder,
		Desc:        "Tạo đơn hàng từ giỏ hàng và thông tin học viên (tên, số điện thoại, email).",
		ParamsOneOf: params(nil),
	},
	ToolGetCustomerOrders: {
		Name:        ToolGetCustomerOrders,
		Desc:        "Lấy các đơn hàng gần đây còn chỉnh sửa được của học viên.",
		ParamsOneOf: params(nil),
	},
	ToolCancelOrder: {
		Name: ToolCancelOrder,
		Desc: "Huỷ một đơn hàng.",
		ParamsOneOf: params(map[string]*schema.ParameterInfo{
			"order_id": {Type: schema.Integer, Desc: "ID đơn hàng cần huỷ", Required: true},
		}),
	},
	ToolModifyReceiverInfo: {
		Name: ToolModifyReceiverInfo,
		Desc: "Cập nhật thông tin người nhận (tên, số điện thoại, email) của một đơn hàng.",
		ParamsOneOf: params(map[string]*schema.ParameterInfo{
			"order_id":  {Type: schema.Integer, Desc: "ID đơn hàng", Required: true},
			"new_name":  {Type: schema.String, Desc: "Tên người nhận mới"},
			"new_phone": {Type: schema.String, Desc: "Số điện thoại người nhận mới"},
			"new_email": {Type: schema.String, Desc: "Email người nhận mới"},
		}),
	},
	ToolAlterItemOrder: {
		Name: ToolAlterItemOrder,
		Desc: "Đổi một khóa học trong đơn hàng đã đặt sang khóa học khác, tính lại tổng tiền.",
		ParamsOneOf: params(map[string]*schema.ParameterInfo{
			"order_id":      {Type: schema.Integer, Desc: "ID đơn hàng", Required: true},
			"old_course_id": {Type: schema.Integer, Desc: "ID khóa học cũ trong đơn", Required: true},
			"new_course_id": {Type: schema.Integer, Desc: "ID khóa học mới, lấy từ danh sách khóa học khách đã xem", Required: true},
		}),
	},
	ToolAlterAdmissionDay: {
		Name: ToolAlterAdmissionDay,
		Desc: "Dời ngày khai giảng của đơn hàng sang khóa kế tiếp.",
		ParamsOneOf: params(map[string]*schema.ParameterInfo{
			"order_id": {Type: schema.Integer, Desc: "ID đơn hàng", Required: true},
		}),
	},
}
