package contract

import (
	"time"

	"github.com/cloudwego/eino/schema"

	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
)

type Route string

const (
	RouteAdvisor      Route = "course_advisor"
	RouteEnrollment   Route = "enrollment"
	RouteModification Route = "modification"
	RouteEscalation   Route = "escalation"
	RouteEnd          Route = statex.RouteEnd
)

// HandlerRoutes lists the routes served by a specialist handler.
var HandlerRoutes = []Route{RouteAdvisor, RouteEnrollment, RouteModification, RouteEscalation}

func (r Route) Valid() bool {
	switch r {
	case RouteAdvisor, RouteEnrollment, RouteModification, RouteEscalation, RouteEnd:
		return true
	default:
		return false
	}
}

// Decision is the router's output for one turn.
type Decision struct {
	Next           Route  `json:"next"`
	ClosingMessage string `json:"closing_message,omitempty"`
}

// Step is one observable graph step: the node that ran and the messages it produced.
type Step struct {
	Node     string
	Messages []*schema.Message
}

/* ------------------------------ directory ------------------------------ */

type Customer struct {
	StudentID int64
	ChatID    string
	Name      string
	Phone     string
	Email     string
}

type ProfilePatch struct {
	Name  string
	Phone string
	Email string
}

func (p ProfilePatch) Empty() bool {
	return p.Name == "" && p.Phone == "" && p.Email == ""
}

/* ------------------------------- catalog ------------------------------- */

type Schedule struct {
	ScheduleID   int64
	CourseID     int64
	StartDate    time.Time
	EndDate      time.Time
	DaysOfWeek   string
	Time         string
	Mode         string
	LocationLink string
}

/* -------------------------------- orders ------------------------------- */

// NewOrder is everything needed to insert an order and its items atomically.
type NewOrder struct {
	StudentID     int64
	Payment       string
	OrderTotal    float64
	Discount      float64
	GrandTotal    float64
	ReceiverName  string
	ReceiverPhone string
	ReceiverEmail string
	AdmissionDay  string
	Items         []statex.OrderItem
}

// ItemSwap replaces one course in an order. The store recomputes the order totals.
type ItemSwap struct {
	OrderID     int64
	OldItemID   int64
	NewCourseID int64
	Price       float64
	Subtotal    float64
}

/* ----------------------------- side channels ---------------------------- */

type Complaint struct {
	StudentID     int64
	Name          string
	Phone         string
	Email         string
	ChatHistories string
	StateJSON     string
}

type EscalationAlert struct {
	CustomerName   string
	CustomerPhone  string
	IssueSummary   string
	ChatHistoryURL string
}

type CourseChangeAlert struct {
	CustomerName  string
	CustomerPhone string
	Detail        string
}

type ComplaintRow struct {
	CustomerID    string
	ChatID        string
	Name          string
	Phone         string
	Platform      string
	ChatHistories string
	Summary       string
	Type          string
	Priority      string
	At            time.Time
}

type OrderRow struct {
	OrderID       int64
	ReceiverName  string
	ReceiverPhone string
	ReceiverEmail string
	CourseNames   string
	AdmissionDay  string
	GrandTotal    float64
	Payment       string
}
