package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
	"github.com/tanpawarit/Chative-Course-Concierge/pkg/errx"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

const (
	DefaultPaymentMethod = "chuyển khoản ngân hàng"
	openOrderLimit       = 5
	refundWindow         = 30 * 24 * time.Hour
)

// identityField names one piece of the receiver identity an order needs.
type identityField struct {
	Key   string
	Label string
}

var (
	fieldName  = identityField{"name", "tên"}
	fieldPhone = identityField{"phone", "số điện thoại"}
	fieldEmail = identityField{"email", "email"}
)

// orderGone answers an order id the store no longer knows about.
func orderGone(id int64) Outcome {
	return clarify(fmt.Sprintf("Không tìm thấy đơn hàng có ID %d, hỏi khách kiểm tra lại mã đơn hàng.", id))
}

// missingIdentity lists which of name, phone and email are still empty, in that order.
func missingIdentity(st *statex.ConversationState) []identityField {
	var out []identityField
	if strings.TrimSpace(st.Name) == "" {
		out = append(out, fieldName)
	}
	if strings.TrimSpace(st.Phone) == "" {
		out = append(out, fieldPhone)
	}
	if strings.TrimSpace(st.Email) == "" {
		out = append(out, fieldEmail)
	}
	return out
}

func missingIdentityMessage(missing []identityField) string {
	parts := make([]string, 0, len(missing))
	for _, f := range missing {
		parts = append(parts, fmt.Sprintf("%s (%s)", f.Key, f.Label))
	}
	return "Thiếu thông tin của khách: " + strings.Join(parts, ", ") + ". Hỏi khách các thông tin còn thiếu."
}

func addOrder(ctx context.Context, d Deps, st *statex.ConversationState, _ string) (Outcome, error) {
	if len(st.Cart) == 0 {
		return clarify("Giỏ hàng đang trống, khách chưa chọn khóa học nào. Hỏi khách muốn đăng ký khóa học nào."), nil
	}
	if missing := missingIdentity(st); len(missing) > 0 {
		return clarify(missingIdentityMessage(missing)), nil
	}
	if st.CustomerID == 0 {
		return clarify("Chưa xác định được hồ sơ học viên nên chưa thể lên đơn, xin lỗi khách và nhờ khách thử lại sau."), nil
	}

	total, discount, grand := cartTotals(st.Cart, st.SeenItems)
	courseIDs := sortedKeys(st.Cart)

	items := make([]statex.OrderItem, 0, len(courseIDs))
	names := make([]string, 0, len(courseIDs))
	for _, id := range courseIDs {
		it := st.Cart[id]
		var promo float64
		if c, ok := st.SeenItems[id]; ok {
			promo = c.Promotion
			names = append(names, c.Name)
		}
		items = append(items, statex.OrderItem{
			CourseID: id,
			Price:    it.Price,
			Subtotal: it.Price * (1 - promo),
		})
	}

	admission := earliestStart(ctx, d, courseIDs[0])
	in := contractx.NewOrder{
		StudentID:     st.CustomerID,
		Payment:       orDefault(st.PaymentMethod, DefaultPaymentMethod),
		OrderTotal:    total,
		Discount:      discount,
		GrandTotal:    grand,
		ReceiverName:  st.Name,
		ReceiverPhone: st.Phone,
		ReceiverEmail: st.Email,
		AdmissionDay:  admission,
		Items:         items,
	}
	order, err := d.Orders.CreateOrder(ctx, in)
	if err != nil {
		return Outcome{}, err
	}

	if d.Sheets != nil {
		err := d.Sheets.AppendOrder(ctx, contractx.OrderRow{
			OrderID:       order.OrderID,
			ReceiverName:  in.ReceiverName,
			ReceiverPhone: in.ReceiverPhone,
			ReceiverEmail: in.ReceiverEmail,
			CourseNames:   strings.Join(names, ", "),
			AdmissionDay:  in.AdmissionDay,
			GrandTotal:    in.GrandTotal,
			Payment:       in.Payment,
		})
		if err != nil {
			logx.Warn().Err(err).Int64("order_id", order.OrderID).Msg("failed to log order to sheet")
		}
	}

	msg := "Tạo đơn hàng thành công, đây là đơn hàng của khách:\n" + describeOrder(order) +
		"\nKhông được tóm gọn, phải liệt kê chi tiết, đầy đủ, không bịa đặt.\n" +
		"Thông báo thêm: trung tâm sẽ liên hệ để xác nhận và hướng dẫn thủ tục nhập học."
	return Outcome{
		Message: msg,
		Delta: statex.Delta{
			Orders:    copyOrders(st.Orders, order),
			Cart:      map[int64]statex.CartItem{},
			SeenItems: map[int64]statex.SeenItem{},
		},
	}, nil
}

// earliestStart looks up the first schedule of the course. A failed lookup leaves the day empty.
func earliestStart(ctx context.Context, d Deps, courseID int64) string {
	schedules, err := d.Catalog.Schedules(ctx, courseID)
	if err != nil {
		logx.Warn().Err(err).Int64("course_id", courseID).Msg("failed to look up admission day")
		return ""
	}
	for _, s := range schedules {
		if !s.StartDate.IsZero() {
			return s.StartDate.Format(statex.DayLayout)
		}
	}
	return ""
}

func getCustomerOrders(ctx context.Context, d Deps, st *statex.ConversationState, _ string) (Outcome, error) {
	if st.CustomerID == 0 {
		return clarify("Chưa xác định được hồ sơ học viên, xin lỗi khách và hứa sẽ khắc phục sớm nhất."), nil
	}
	orders, err := d.Orders.ListOpenOrders(ctx, st.CustomerID, openOrderLimit)
	if err != nil {
		return Outcome{}, err
	}
	if len(orders) == 0 {
		return clarify("Thông báo khách chưa có đơn hàng nào có thể chỉnh sửa."), nil
	}

	var b strings.Builder
	b.WriteString("Đây là các đơn hàng khách có thể chỉnh sửa:\n")
	for i, o := range orders {
		fmt.Fprintf(&b, "Đơn thứ %d:\n%s\n", i+1, describeOrder(o))
	}
	b.WriteString("In ra dưới dạng rút gọn để khách xác định được đơn muốn chỉnh sửa.")
	return Outcome{
		Message: b.String(),
		Delta:   statex.Delta{Orders: copyOrders(st.Orders, orders...)},
	}, nil
}

func cancelOrder(ctx context.Context, d Deps, st *statex.ConversationState, raw string) (Outcome, error) {
	var args orderArgs
	if !decodeArgs(raw, &args) {
		return clarify(msgBadArgs), nil
	}
	if len(st.Orders) == 0 {
		return clarify("Chưa có thông tin đơn hàng của khách, hãy lấy danh sách đơn hàng của khách trước."), nil
	}
	id := int64(args.OrderID)
	if _, ok := st.Orders[id]; id == 0 || !ok {
		return clarify("Không xác định được đơn hàng khách muốn huỷ trong danh sách đơn của khách, hỏi lại khách mã đơn hàng."), nil
	}

	changed, err := d.Orders.CancelOrder(ctx, id)
	if errx.IsNotFound(err) {
		return orderGone(id), nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if !changed {
		return clarify(fmt.Sprintf("Đơn hàng %d đã được huỷ trước đó hoặc không tồn tại, báo lại cho khách.", id)), nil
	}

	orders := copyOrders(st.Orders)
	if o, ok := orders[id]; ok {
		o.Status = statex.OrderCancelled
		orders[id] = o
	}
	return Outcome{
		Message: fmt.Sprintf("Đã huỷ thành công đơn hàng có ID %d.", id),
		Delta:   statex.Delta{Orders: orders},
	}, nil
}

func modifyReceiverInfo(ctx context.Context, d Deps, st *statex.ConversationState, raw string) (Outcome, error) {
	var args profileArgs
	if !decodeArgs(raw, &args) {
		return clarify(msgBadArgs), nil
	}
	id := int64(args.OrderID)
	if _, ok := st.Orders[id]; id == 0 || !ok {
		return clarify("Em chưa xác định được anh/chị muốn chỉnh sửa thông tin cho đơn hàng nào. Anh/chị vui lòng cung cấp mã đơn hàng nhé."), nil
	}
	patch := contractx.ProfilePatch{
		Name:  strings.TrimSpace(args.NewName),
		Phone: strings.TrimSpace(args.NewPhone),
		Email: strings.TrimSpace(args.NewEmail),
	}
	if patch.Empty() {
		return clarify("Để cập nhật, anh/chị vui lòng cung cấp ít nhất một thông tin mới (tên, số điện thoại, hoặc email) ạ."), nil
	}

	order, err := d.Orders.UpdateReceiver(ctx, id, patch)
	if errx.IsNotFound(err) {
		return orderGone(id), nil
	}
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Message: "Đã cập nhật thông tin người nhận cho đơn hàng. Thông tin chi tiết:\n" + describeOrder(order),
		Delta:   statex.Delta{Orders: copyOrders(st.Orders, order)},
	}, nil
}

func alterItemOrder(ctx context.Context, d Deps, st *statex.ConversationState, raw string) (Outcome, error) {
	var args swapArgs
	if !decodeArgs(raw, &args) {
		return clarify(msgBadArgs), nil
	}
	id := int64(args.OrderID)
	current, ok := st.Orders[id]
	if id == 0 || !ok {
		return clarify("Em chưa xác định được anh/chị muốn sửa đơn hàng nào. Anh/chị có thể cho em biết mã đơn hàng được không ạ?"), nil
	}
	if args.OldCourseID == 0 || args.NewCourseID == 0 {
		return clarify("Để thay đổi khóa học, anh/chị vui lòng cho em biết khóa học cũ và khóa học mới mà anh/chị quan tâm nhé."), nil
	}
	course, ok := st.SeenItems[int64(args.NewCourseID)]
	if !ok {
		return clarify(fmt.Sprintf("Chưa có thông tin về khóa học mới (ID: %d). Hãy tìm khóa học này trước.", args.NewCourseID)), nil
	}
	var old statex.OrderItem
	found := false
	for _, it := range current.Items {
		if it.CourseID == int64(args.OldCourseID) {
			old, found = it, true
			break
		}
	}
	if !found {
		return clarify(fmt.Sprintf("Không tìm thấy khóa học (ID: %d) trong đơn hàng %d, hỏi khách kiểm tra lại.", args.OldCourseID, id)), nil
	}

	age := d.now().Sub(current.CreatedAt)
	refundable := !current.CreatedAt.IsZero() && age < refundWindow

	updated, err := d.Orders.SwapItem(ctx, contractx.ItemSwap{
		OrderID:     id,
		OldItemID:   old.ItemID,
		NewCourseID: course.CourseID,
		Price:       course.Price,
		Subtotal:    course.DiscountedPrice(),
	})
	if errx.IsNotFound(err) {
		return orderGone(id), nil
	}
	if err != nil {
		return Outcome{}, err
	}

	msg := "Em đã cập nhật thành công đơn hàng của anh/chị. Thông tin chi tiết:\n" + describeOrder(updated)
	if refundable {
		days := int(age.Hours() / 24)
		if d.Notifier != nil {
			err := d.Notifier.NotifyCourseChange(ctx, contractx.CourseChangeAlert{
				CustomerName:  st.Name,
				CustomerPhone: st.Phone,
				Detail: fmt.Sprintf("Khách hàng '%s' (SĐT: %s) đã đổi khóa học trong đơn hàng #%d. "+
					"Khóa học cũ (ID: %d) được đăng ký %d ngày trước, đủ điều kiện hoàn tiền. Vui lòng hỗ trợ hoàn tiền cho học viên.",
					st.Name, st.Phone, id, old.CourseID, days),
			})
			if err != nil {
				logx.Warn().Err(err).Int64("order_id", id).Msg("failed to send course change alert")
			}
		}
		msg += "\n\nThông báo thêm: do yêu cầu đổi được thực hiện trong vòng 30 ngày, bộ phận CSKH sẽ liên hệ để xác nhận và hoàn lại học phí cho khóa học đã hủy."
	}
	return Outcome{
		Message: msg,
		Delta:   statex.Delta{Orders: copyOrders(st.Orders, updated)},
	}, nil
}

// shiftAdmissionDay moves a 2006-01-02 date forward by whole weeks.
func shiftAdmissionDay(day string, weeks int) (string, error) {
	t, err := time.Parse(statex.DayLayout, strings.TrimSpace(day))
	if err != nil {
		return "", fmt.Errorf("parse admission day %q: %w", day, err)
	}
	return t.AddDate(0, 0, 7*weeks).Format(statex.DayLayout), nil
}

func alterAdmissionDay(ctx context.Context, d Deps, st *statex.ConversationState, raw string) (Outcome, error) {
	var args orderArgs
	if !decodeArgs(raw, &args) {
		return clarify(msgBadArgs), nil
	}
	id := int64(args.OrderID)
	if _, ok := st.Orders[id]; id == 0 || !ok {
		return clarify("Không xác định được đơn hàng khách muốn dời lịch trong danh sách đơn của khách, hỏi lại khách mã đơn hàng."), nil
	}

	order, err := d.Orders.OrderByID(ctx, id)
	if errx.IsNotFound(err) {
		return orderGone(id), nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if strings.TrimSpace(order.AdmissionDay) == "" {
		return clarify("Đơn hàng chưa có ngày khai giảng để dời, báo khách trung tâm sẽ liên hệ xếp lịch."), nil
	}
	first, ok := order.FirstItem()
	if !ok {
		return clarify("Đơn hàng không có khóa học nào để dời lịch, hỏi khách kiểm tra lại mã đơn."), nil
	}
	weeks := first.DurationWeeks
	if weeks <= 0 {
		if courses, err := d.Catalog.CoursesByIDs(ctx, []int64{first.CourseID}); err == nil && len(courses) > 0 {
			weeks = courses[0].DurationWeeks
		}
	}
	if weeks <= 0 {
		return clarify("Không tìm thấy thời lượng khóa học để tính ngày khai giảng mới, xin lỗi khách."), nil
	}

	next, err := shiftAdmissionDay(order.AdmissionDay, weeks)
	if err != nil {
		return clarify("Ngày khai giảng hiện tại của đơn không hợp lệ, xin lỗi khách và báo sẽ có nhân viên liên hệ."), nil
	}
	updated, err := d.Orders.UpdateAdmissionDay(ctx, id, next)
	if errx.IsNotFound(err) {
		return orderGone(id), nil
	}
	if err != nil {
		return Outcome{}, err
	}

	shown, _ := time.Parse(statex.DayLayout, next)
	msg := fmt.Sprintf("Dạ em đã cập nhật dời lịch học của mình sang khóa khai giảng ngày %s tiếp theo. "+
		"Mã đơn hàng #%d của mình vẫn được giữ nguyên ạ.", shown.Format("02/01/2006"), id)
	return Outcome{
		Message: msg,
		Delta:   statex.Delta{Orders: copyOrders(st.Orders, updated)},
	}, nil
}
