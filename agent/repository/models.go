package repository

import (
	"time"

	"github.com/uptrace/bun"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
)

type studentModel struct {
	bun.BaseModel `bun:"table:students,alias:s"`

	StudentID int64  `bun:"student_id,pk,autoincrement"`
	ChatID    string `bun:"chat_id,unique"`
	Name      string `bun:"name,nullzero"`
	Phone     string `bun:"phone_number,nullzero"`
	Email     string `bun:"email,nullzero"`
}

func (m studentModel) toCustomer() contractx.Customer {
	return contractx.Customer{
		StudentID: m.StudentID,
		ChatID:    m.ChatID,
		Name:      m.Name,
		Phone:     m.Phone,
		Email:     m.Email,
	}
}

// courseModel maps courses_description. The embedding column is only referenced in SQL.
type courseModel struct {
	bun.BaseModel `bun:"table:courses_description,alias:c"`

	CourseID          int64   `bun:"course_id,pk"`
	Name              string  `bun:"name"`
	Description       string  `bun:"description,nullzero"`
	Type              string  `bun:"type,nullzero"`
	Duration          int     `bun:"duration"`
	Price             float64 `bun:"price"`
	Promotion         float64 `bun:"promotion"`
	SessionsPerWeek   int     `bun:"sessions_per_week"`
	MinutesPerSession int     `bun:"minutes_per_session"`
	InstructorName    string  `bun:"instructor_name,nullzero"`
}

func (m courseModel) toSeenItem() statex.SeenItem {
	return statex.SeenItem{
		CourseID:          m.CourseID,
		Name:              m.Name,
		Description:       m.Description,
		Type:              m.Type,
		DurationWeeks:     m.Duration,
		Price:             m.Price,
		Promotion:         m.Promotion,
		SessionsPerWeek:   m.SessionsPerWeek,
		MinutesPerSession: m.MinutesPerSession,
		InstructorName:    m.InstructorName,
	}
}

type scheduleModel struct {
	bun.BaseModel `bun:"table:schedules,alias:sc"`

	ScheduleID   int64     `bun:"schedule_id,pk"`
	CourseID     int64     `bun:"course_id"`
	StartDate    time.Time `bun:"start_date"`
	EndDate      time.Time `bun:"end_date"`
	DaysOfWeek   string    `bun:"days_of_week,nullzero"`
	Time         string    `bun:"time,nullzero"`
	Mode         string    `bun:"mode,nullzero"`
	LocationLink string    `bun:"location_link,nullzero"`
}

func (m scheduleModel) toSchedule() contractx.Schedule {
	return contractx.Schedule{
		ScheduleID:   m.ScheduleID,
		CourseID:     m.CourseID,
		StartDate:    m.StartDate,
		EndDate:      m.EndDate,
		DaysOfWeek:   m.DaysOfWeek,
		Time:         m.Time,
		Mode:         m.Mode,
		LocationLink: m.LocationLink,
	}
}

type qnaModel struct {
	bun.BaseModel `bun:"table:qna,alias:q"`

	ID      int64  `bun:"id,pk"`
	Content string `bun:"content"`
}

type orderModel struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	OrderID       int64     `bun:"order_id,pk,autoincrement"`
	StudentID     int64     `bun:"student_id"`
	Status        string    `bun:"status"`
	Payment       string    `bun:"payment"`
	OrderTotal    float64   `bun:"order_total"`
	Discount      float64   `bun:"discount_voucher"`
	GrandTotal    float64   `bun:"grand_total"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ReceiverName  string    `bun:"receiver_name"`
	ReceiverPhone string    `bun:"receiver_phone_number"`
	ReceiverEmail string    `bun:"receiver_email"`
	AdmissionDay  string    `bun:"admission_day,nullzero"`

	Items []*orderItemModel `bun:"rel:has-many,join:order_id=order_id"`
}

type orderItemModel struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ItemID   int64   `bun:"item_id,pk,autoincrement"`
	OrderID  int64   `bun:"order_id"`
	CourseID int64   `bun:"course_id"`
	Price    float64 `bun:"price"`
	Subtotal float64 `bun:"subtotal"`

	Course *courseModel `bun:"rel:belongs-to,join:course_id=course_id"`
}

func (m *orderModel) toOrder() statex.Order {
	o := statex.Order{
		OrderID:       m.OrderID,
		Status:        statex.OrderStatus(m.Status),
		Payment:       m.Payment,
		OrderTotal:    m.OrderTotal,
		Discount:      m.Discount,
		GrandTotal:    m.GrandTotal,
		CreatedAt:     m.CreatedAt,
		ReceiverName:  m.ReceiverName,
		ReceiverPhone: m.ReceiverPhone,
		ReceiverEmail: m.ReceiverEmail,
		AdmissionDay:  normalizeDay(m.AdmissionDay),
		Items:         make(map[int64]statex.OrderItem, len(m.Items)),
	}
	for _, it := range m.Items {
		if it == nil {
			continue
		}
		item := statex.OrderItem{
			ItemID:   it.ItemID,
			CourseID: it.CourseID,
			Price:    it.Price,
			Subtotal: it.Subtotal,
		}
		if it.Course != nil {
			item.Name = it.Course.Name
			item.DurationWeeks = it.Course.Duration
			item.Promotion = it.Course.Promotion
		}
		o.Items[it.ItemID] = item
	}
	return o
}

// normalizeDay trims a timestamp rendering of a date column down to 2006-01-02.
func normalizeDay(s string) string {
	if len(s) > len(statex.DayLayout) {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Format(statex.DayLayout)
		}
		return s[:len(statex.DayLayout)]
	}
	return s
}

type complaintModel struct {
	bun.BaseModel `bun:"table:complaints,alias:cp"`

	ID            int64  `bun:"id,pk,autoincrement"`
	StudentID     int64  `bun:"student_id,nullzero"`
	Name          string `bun:"name,nullzero"`
	Phone         string `bun:"phone,nullzero"`
	Email         string `bun:"email,nullzero"`
	ChatHistories string `bun:"chat_histories"`
	State         string `bun:"state"`
}
