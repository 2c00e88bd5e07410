package state

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
)

const (
	// RouteEnd is stored in RoutingDecision once a turn has produced its reply.
	RouteEnd = "__end__"
	// DayLayout is the wire format of admission days.
	DayLayout = "2006-01-02"
)

// ConversationState is the single record threaded through every turn of a session.
// Merge behaviour per field is declared in mergeTable (merge.go).
type ConversationState struct {
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id"`

	Messages        []*schema.Message `json:"messages"`
	UserInput       string            `json:"user_input,omitempty"`
	RoutingDecision string            `json:"routing_decision,omitempty"`

	// Identity, empty until the customer directory resolves it.
	CustomerID    int64  `json:"customer_id,omitempty"`
	Name          string `json:"name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`

	SeenItems map[int64]SeenItem `json:"seen_items"`
	Cart      map[int64]CartItem `json:"cart"`
	Orders    map[int64]Order    `json:"orders"`

	UpdatedAt time.Time `json:"updated_at"`
}

// SeenItem is a snapshot of a course the customer was shown.
type SeenItem struct {
	CourseID          int64   `json:"course_id"`
	Name              string  `json:"name"`
	Description       string  `json:"description,omitempty"`
	Type              string  `json:"type,omitempty"`
	DurationWeeks     int     `json:"duration"`
	Price             float64 `json:"price"`
	Promotion         float64 `json:"promotion,omitempty"`
	SessionsPerWeek   int     `json:"sessions_per_week,omitempty"`
	MinutesPerSession int     `json:"minutes_per_session,omitempty"`
	InstructorName    string  `json:"instructor_name,omitempty"`
}

// DiscountedPrice applies the promotion rate.
func (s SeenItem) DiscountedPrice() float64 {
	return s.Price * (1 - s.Promotion)
}

type CartItem struct {
	CourseID int64   `json:"course_id"`
	Price    float64 `json:"price"`
	Subtotal float64 `json:"subtotal"`
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
	OrderReturned  OrderStatus = "returned"
	OrderRefunded  OrderStatus = "refunded"
)

// ClosedOrderStatuses are excluded from open order listings.
var ClosedOrderStatuses = []OrderStatus{OrderDelivered, OrderCancelled, OrderReturned, OrderRefunded}

type Order struct {
	OrderID       int64               `json:"order_id"`
	Status        OrderStatus         `json:"status"`
	Payment       string              `json:"payment"`
	OrderTotal    float64             `json:"order_total"`
	Discount      float64             `json:"discount"`
	GrandTotal    float64             `json:"grand_total"`
	CreatedAt     time.Time           `json:"created_at"`
	ReceiverName  string              `json:"receiver_name"`
	ReceiverPhone string              `json:"receiver_phone"`
	ReceiverEmail string              `json:"receiver_email"`
	AdmissionDay  string              `json:"admission_day,omitempty"`
	Items         map[int64]OrderItem `json:"items"`
}

type OrderItem struct {
	ItemID        int64   `json:"item_id"`
	CourseID      int64   `json:"course_id"`
	Name          string  `json:"name,omitempty"`
	DurationWeeks int     `json:"duration,omitempty"`
	Promotion     float64 `json:"promotion,omitempty"`
	Price         float64 `json:"price"`
	Subtotal      float64 `json:"subtotal"`
}

// FirstItem returns the item with the lowest item id, which is the first one inserted.
func (o Order) FirstItem() (OrderItem, bool) {
	var (
		first OrderItem
		found bool
	)
	for _, it := range o.Items {
		if !found || it.ItemID < first.ItemID {
			first, found = it, true
		}
	}
	return first, found
}

// Clone deep-copies the order including its item map.
func (o Order) Clone() Order {
	o.Items = maps.Clone(o.Items)
	return o
}

/* -------------------------- ConversationState helpers ------------------------- */

// New returns the initial state of a session that has no checkpoint yet.
func New(sessionID string) *ConversationState {
	return &ConversationState{
		SessionID: strings.TrimSpace(sessionID),
		Messages:  []*schema.Message{},
		SeenItems: map[int64]SeenItem{},
		Cart:      map[int64]CartItem{},
		Orders:    map[int64]Order{},
	}
}

// Clone returns a copy whose maps and message slice can be mutated independently.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = slices.Clone(s.Messages)
	out.SeenItems = maps.Clone(s.SeenItems)
	out.Cart = maps.Clone(s.Cart)
	out.Orders = cloneOrders(s.Orders)
	out.normalize()
	return &out
}

func (s *ConversationState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// normalize replaces nil collections so JSON round trips stay structurally equal.
func (s *ConversationState) normalize() {
	if s.Messages == nil {
		s.Messages = []*schema.Message{}
	}
	if s.SeenItems == nil {
		s.SeenItems = map[int64]SeenItem{}
	}
	if s.Cart == nil {
		s.Cart = map[int64]CartItem{}
	}
	if s.Orders == nil {
		s.Orders = map[int64]Order{}
	}
}

// HasIdentity reports whether every field order creation needs is present.
func (s *ConversationState) HasIdentity() bool {
	return s.CustomerID != 0 && s.Name != "" && s.Phone != "" && s.Email != ""
}

// LastAssistantMessage returns the content of the newest assistant message.
func (s *ConversationState) LastAssistantMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m != nil && m.Role == schema.Assistant && strings.TrimSpace(m.Content) != "" {
			return m.Content
		}
	}
	return ""
}

func (s *ConversationState) Validate() error {
	if s == nil {
		return ErrNilState
	}
	if strings.TrimSpace(s.SessionID) == "" {
		return ErrInvalidSession
	}
	for id, o := range s.Orders {
		if o.OrderID != id {
			return fmt.Errorf("order key %d does not match order id %d", id, o.OrderID)
		}
	}
	for id, c := range s.Cart {
		if c.CourseID != id {
			return fmt.Errorf("cart key %d does not match course id %d", id, c.CourseID)
		}
	}
	return nil
}

func cloneOrders(in map[int64]Order) map[int64]Order {
	if in == nil {
		return nil
	}
	out := make(map[int64]Order, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}

var (
	ErrStateNotFound  = errors.New("conversation state not found")
	ErrNilState       = errors.New("conversation state is nil")
	ErrInvalidSession = errors.New("session id is empty")
)
