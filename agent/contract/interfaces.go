package contract

import (
	"context"

	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
)

// Router decides the next handler (or the end of the turn) from the current state.
type Router interface {
	Decide(ctx context.Context, st *statex.ConversationState) (Decision, error)
}

// Handler produces exactly one assistant reply per turn as a state delta.
type Handler interface {
	Handle(ctx context.Context, st *statex.ConversationState) (statex.Delta, error)
}

type Registry interface {
	Router() Router
	Handler(route Route) (Handler, bool)
}

type CustomerDirectory interface {
	UpsertByChatID(ctx context.Context, chatID string) (Customer, error)
	UpdateProfile(ctx context.Context, studentID int64, patch ProfilePatch) (Customer, error)
}

type Catalog interface {
	SearchCoursesByName(ctx context.Context, keywords string, limit int) ([]statex.SeenItem, error)
	SearchCoursesSemantic(ctx context.Context, query string, limit int) ([]statex.SeenItem, error)
	CoursesByIDs(ctx context.Context, ids []int64) ([]statex.SeenItem, error)
	PromotedCourses(ctx context.Context, limit int) ([]statex.SeenItem, error)
	Schedules(ctx context.Context, courseID int64) ([]Schedule, error)
	SearchQnA(ctx context.Context, query string, limit int) ([]string, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, in NewOrder) (statex.Order, error)
	OrderByID(ctx context.Context, orderID int64) (statex.Order, error)
	ListOpenOrders(ctx context.Context, studentID int64, limit int) ([]statex.Order, error)
	// CancelOrder reports false when the order was already cancelled or does not exist.
	CancelOrder(ctx context.Context, orderID int64) (bool, error)
	SwapItem(ctx context.Context, swap ItemSwap) (statex.Order, error)
	UpdateReceiver(ctx context.Context, orderID int64, patch ProfilePatch) (statex.Order, error)
	UpdateAdmissionDay(ctx context.Context, orderID int64, day string) (statex.Order, error)
}

type ComplaintStore interface {
	InsertComplaint(ctx context.Context, c Complaint) (int64, error)
}

type Notifier interface {
	NotifyEscalation(ctx context.Context, alert EscalationAlert) error
	NotifyCourseChange(ctx context.Context, alert CourseChangeAlert) error
}

type SheetLogger interface {
	AppendComplaint(ctx context.Context, row ComplaintRow) error
	AppendOrder(ctx context.Context, row OrderRow) error
}

// Embedder turns text into a vector for semantic search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
