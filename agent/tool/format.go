package tool

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
)

const notAvailable = "Chưa có"

func vnd(v float64) string {
	return humanize.Comma(int64(math.Round(v))) + " VNĐ"
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func describeCourse(b *strings.Builder, c statex.SeenItem) {
	fmt.Fprintf(b, "- %s (ID: %d): %s\n", c.Name, c.CourseID, c.Description)
	fmt.Fprintf(b, "  Hình thức: %s. Thời lượng: %d tuần, %d buổi/tuần, %d phút/buổi. Giảng viên: %s.\n",
		orDefault(c.Type, notAvailable), c.DurationWeeks, c.SessionsPerWeek, c.MinutesPerSession, orDefault(c.InstructorName, notAvailable))
	if c.Promotion > 0 {
		fmt.Fprintf(b, "  Học phí: %s, giảm %.0f%% còn %s.\n", vnd(c.Price), c.Promotion*100, vnd(c.DiscountedPrice()))
	} else {
		fmt.Fprintf(b, "  Học phí: %s.\n", vnd(c.Price))
	}
}

// cartTotals mirrors order creation: discount comes from the seen course's promotion rate.
func cartTotals(cart map[int64]statex.CartItem, seen map[int64]statex.SeenItem) (total, discount, grand float64) {
	for _, it := range cart {
		total += it.Subtotal
		if c, ok := seen[it.CourseID]; ok {
			discount += c.Price * c.Promotion
		}
	}
	return total, discount, total - discount
}

func describeCart(st *statex.ConversationState, cart map[int64]statex.CartItem) string {
	var b strings.Builder
	for i, id := range sortedKeys(cart) {
		it := cart[id]
		c, ok := st.SeenItems[id]
		if !ok {
			c = statex.SeenItem{CourseID: id, Name: fmt.Sprintf("Khóa học %d", id), Price: it.Price}
		}
		fmt.Fprintf(&b, "STT %d:\n", i+1)
		describeCourse(&b, c)
	}
	total, discount, grand := cartTotals(cart, st.SeenItems)
	fmt.Fprintf(&b, "Tạm tính: %s. Giảm giá: %s. Tổng cộng: %s.\n", vnd(total), vnd(discount), vnd(grand))
	fmt.Fprintf(&b, "Tên học viên: %s.\nSố điện thoại học viên: %s.\nEmail học viên: %s.\n",
		orDefault(st.Name, notAvailable), orDefault(st.Phone, notAvailable), orDefault(st.Email, notAvailable))
	return b.String()
}

func describeOrder(o statex.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mã đơn: %d (trạng thái: %s)\n", o.OrderID, o.Status)
	for i, id := range sortedKeys(o.Items) {
		it := o.Items[id]
		fmt.Fprintf(&b, "STT %d: %s (mã khóa học %d). Học phí: %s. Cần đóng: %s.\n",
			i+1, orDefault(it.Name, notAvailable), it.CourseID, vnd(it.Price), vnd(it.Subtotal))
	}
	fmt.Fprintf(&b, "Tổng cộng giỏ hàng: %s. Voucher: %s. Tổng cộng: %s.\n", vnd(o.OrderTotal), vnd(o.Discount), vnd(o.GrandTotal))
	fmt.Fprintf(&b, "Phương thức thanh toán: %s.\n", o.Payment)
	fmt.Fprintf(&b, "Người nhận: %s, SĐT: %s, Email: %s.\n", o.ReceiverName, o.ReceiverPhone, o.ReceiverEmail)
	if o.AdmissionDay != "" {
		fmt.Fprintf(&b, "Ngày khai giảng: %s.\n", o.AdmissionDay)
	}
	if !o.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Ngày đặt hàng: %s.\n", o.CreatedAt.Local().Format("15:04:05 - 02/01/2006"))
	}
	return b.String()
}

func copySeen(in map[int64]statex.SeenItem, extra []statex.SeenItem) map[int64]statex.SeenItem {
	out := make(map[int64]statex.SeenItem, len(in)+len(extra))
	for k, v := range in {
		out[k] = v
	}
	for _, c := range extra {
		out[c.CourseID] = c
	}
	return out
}

func copyCart(in map[int64]statex.CartItem) map[int64]statex.CartItem {
	out := make(map[int64]statex.CartItem, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyOrders(in map[int64]statex.Order, extra ...statex.Order) map[int64]statex.Order {
	out := make(map[int64]statex.Order, len(in)+len(extra))
	for k, v := range in {
		out[k] = v.Clone()
	}
	for _, o := range extra {
		out[o.OrderID] = o.Clone()
	}
	return out
}
