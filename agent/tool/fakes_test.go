package tool

import (
	"context"
	"database/sql"
	"errors"
	"time"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
	"github.com/tanpawarit/Chative-Course-Concierge/pkg/errx"
)

var errBackend = errors.New("backend down")

type fakeCatalog struct {
	byName    []statex.SeenItem
	semantic  []statex.SeenItem
	byID      map[int64]statex.SeenItem
	promoted  []statex.SeenItem
	schedules map[int64][]contractx.Schedule
	qna       []string
	err       error

	semanticQuery string
}

func (f *fakeCatalog) SearchCoursesByName(_ context.Context, _ string, _ int) ([]statex.SeenItem, error) {
	return f.byName, f.err
}

func (f *fakeCatalog) SearchCoursesSemantic(_ context.Context, q string, _ int) ([]statex.SeenItem, error) {
	f.semanticQuery = q
	return f.semantic, f.err
}

func (f *fakeCatalog) CoursesByIDs(_ context.Context, ids []int64) ([]statex.SeenItem, error) {
	var out []statex.SeenItem
	for _, id := range ids {
		if c, ok := f.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, f.err
}

func (f *fakeCatalog) PromotedCourses(_ context.Context, _ int) ([]statex.SeenItem, error) {
	return f.promoted, f.err
}

func (f *fakeCatalog) Schedules(_ context.Context, courseID int64) ([]contractx.Schedule, error) {
	return f.schedules[courseID], f.err
}

func (f *fakeCatalog) SearchQnA(_ context.Context, _ string, _ int) ([]string, error) {
	return f.qna, f.err
}

// fakeOrders answers unknown order ids the way the bun repository does.
type fakeOrders struct {
	orders    map[int64]statex.Order
	created   []contractx.NewOrder
	swaps     []contractx.ItemSwap
	cancels   []int64
	cancelled bool
	newDay    string
	err       error
}

func (f *fakeOrders) lookup(id int64) (statex.Order, error) {
	if f.err != nil {
		return statex.Order{}, f.err
	}
	o, ok := f.orders[id]
	if !ok {
		return statex.Order{}, errx.WrapDB(sql.ErrNoRows)
	}
	return o.Clone(), nil
}

func (f *fakeOrders) CreateOrder(_ context.Context, in contractx.NewOrder) (statex.Order, error) {
	if f.err != nil {
		return statex.Order{}, f.err
	}
	f.created = append(f.created, in)
	items := map[int64]statex.OrderItem{}
	for i, it := range in.Items {
		it.ItemID = int64(i + 1)
		items[it.ItemID] = it
	}
	return statex.Order{
		OrderID:      100 + int64(len(f.created)),
		Status:       statex.OrderPending,
		Payment:      in.Payment,
		OrderTotal:   in.OrderTotal,
		Discount:     in.Discount,
		GrandTotal:   in.GrandTotal,
		ReceiverName: in.ReceiverName,
		AdmissionDay: in.AdmissionDay,
		Items:        items,
	}, nil
}

func (f *fakeOrders) OrderByID(_ context.Context, id int64) (statex.Order, error) {
	return f.lookup(id)
}

func (f *fakeOrders) ListOpenOrders(_ context.Context, _ int64, _ int) ([]statex.Order, error) {
	var out []statex.Order
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, f.err
}

func (f *fakeOrders) CancelOrder(_ context.Context, id int64) (bool, error) {
	f.cancels = append(f.cancels, id)
	if _, err := f.lookup(id); err != nil {
		return false, err
	}
	return f.cancelled, nil
}

func (f *fakeOrders) SwapItem(_ context.Context, s contractx.ItemSwap) (statex.Order, error) {
	f.swaps = append(f.swaps, s)
	o, err := f.lookup(s.OrderID)
	if err != nil {
		return statex.Order{}, err
	}
	if o.Items == nil {
		o.Items = map[int64]statex.OrderItem{}
	}
	delete(o.Items, s.OldItemID)
	o.Items[99] = statex.OrderItem{ItemID: 99, CourseID: s.NewCourseID, Price: s.Price, Subtotal: s.Subtotal}
	return o, nil
}

func (f *fakeOrders) UpdateReceiver(_ context.Context, id int64, p contractx.ProfilePatch) (statex.Order, error) {
	o, err := f.lookup(id)
	if err != nil {
		return statex.Order{}, err
	}
	if p.Name != "" {
		o.ReceiverName = p.Name
	}
	return o, nil
}

func (f *fakeOrders) UpdateAdmissionDay(_ context.Context, id int64, day string) (statex.Order, error) {
	o, err := f.lookup(id)
	if err != nil {
		return statex.Order{}, err
	}
	f.newDay = day
	o.AdmissionDay = day
	return o, nil
}

type fakeCustomers struct {
	patch contractx.ProfilePatch
	err   error
}

func (f *fakeCustomers) UpsertByChatID(_ context.Context, chatID string) (contractx.Customer, error) {
	return contractx.Customer{StudentID: 1, ChatID: chatID}, f.err
}

func (f *fakeCustomers) UpdateProfile(_ context.Context, id int64, p contractx.ProfilePatch) (contractx.Customer, error) {
	f.patch = p
	return contractx.Customer{StudentID: id, Name: p.Name, Phone: p.Phone, Email: p.Email}, f.err
}

type recordingNotifier struct {
	changes []contractx.CourseChangeAlert
}

func (r *recordingNotifier) NotifyEscalation(context.Context, contractx.EscalationAlert) error {
	return nil
}

func (r *recordingNotifier) NotifyCourseChange(_ context.Context, a contractx.CourseChangeAlert) error {
	r.changes = append(r.changes, a)
	return nil
}

type recordingSheets struct {
	orders []contractx.OrderRow
}

func (r *recordingSheets) AppendComplaint(context.Context, contractx.ComplaintRow) error { return nil }

func (r *recordingSheets) AppendOrder(_ context.Context, row contractx.OrderRow) error {
	r.orders = append(r.orders, row)
	return nil
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
}
