package tool

import (
	"context"
	"fmt"

	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
)

const cartFollowUp = "Bạn phải liệt kê đầy đủ, không được rút gọn hay bịa đặt thông tin mới.\n" +
	"Nếu thiếu tên, số điện thoại hoặc email thì hỏi khách thông tin đó.\n" +
	"Nếu khách không có yêu cầu khác thì không gọi thêm công cụ nào và tạo phản hồi để khách xác nhận."

func addItemCart(_ context.Context, _ Deps, st *statex.ConversationState, raw string) (Outcome, error) {
	var args courseArgs
	if !decodeArgs(raw, &args) {
		return clarify(msgBadArgs), nil
	}
	if len(st.SeenItems) == 0 {
		return clarify("Khách chưa xem khóa học nào, hỏi khách muốn đăng ký khóa học nào rồi tìm khóa học trước."), nil
	}
	if args.CourseID == 0 {
		return clarify("Không xác định được khóa học khách muốn đăng ký, hỏi lại khách."), nil
	}
	course, ok := st.SeenItems[int64(args.CourseID)]
	if !ok {
		return clarify(fmt.Sprintf("Khóa học ID %d chưa có trong danh sách khách đã xem, hãy tìm khóa học trước.", args.CourseID)), nil
	}

	cart := copyCart(st.Cart)
	cart[course.CourseID] = statex.CartItem{CourseID: course.CourseID, Price: course.Price, Subtotal: course.Price}
	return Outcome{
		Message: fmt.Sprintf("Đã thêm khóa học '%s' vào giỏ hàng. Đây là giỏ hàng:\n%s\n%s", course.Name, describeCart(st, cart), cartFollowUp),
		Delta:   statex.Delta{Cart: cart},
	}, nil
}

func cancelItemCart(_ context.Context, _ Deps, st *statex.ConversationState, raw string) (Outcome, error) {
	var args courseArgs
	if !decodeArgs(raw, &args) {
		return clarify(msgBadArgs), nil
	}
	if len(st.Cart) == 0 {
		return clarify("Giỏ hàng đang trống, hỏi khách có muốn xem khóa học nào không."), nil
	}
	if args.CourseID == 0 {
		return clarify("Không xác định được khóa học khách muốn xoá khỏi giỏ hàng, nhờ khách mô tả rõ hơn."), nil
	}
	if _, ok := st.Cart[int64(args.CourseID)]; !ok {
		return clarify("Khóa học khách muốn xoá không có trong giỏ hàng, hỏi khách kiểm tra lại."), nil
	}

	cart := copyCart(st.Cart)
	delete(cart, int64(args.CourseID))
	if len(cart) == 0 {
		return Outcome{
			Message: "Đã xoá khóa học khỏi giỏ hàng. Giỏ hàng hiện trống, hỏi khách có muốn xem khóa học nào không.",
			Delta:   statex.Delta{Cart: cart},
		}, nil
	}
	return Outcome{
		Message: fmt.Sprintf("Đã xoá khóa học khỏi giỏ hàng. Đây là giỏ hàng:\n%s\n%s", describeCart(st, cart), cartFollowUp),
		Delta:   statex.Delta{Cart: cart},
	}, nil
}

func alterItemCart(_ context.Context, _ Deps, st *statex.ConversationState, raw string) (Outcome, error) {
	var args swapArgs
	if !decodeArgs(raw, &args) {
		return clarify(msgBadArgs), nil
	}
	if len(st.Cart) == 0 {
		return clarify("Giỏ hàng đang trống, hỏi khách có muốn xem khóa học nào không."), nil
	}
	if args.OldCourseID == 0 || args.NewCourseID == 0 {
		return clarify("Cần biết khóa học cũ trong giỏ và khóa học mới khách muốn đổi sang, hỏi lại khách."), nil
	}
	if _, ok := st.Cart[int64(args.OldCourseID)]; !ok {
		return clarify("Khóa học khách muốn đổi không có trong giỏ hàng, hỏi khách kiểm tra lại."), nil
	}
	course, ok := st.SeenItems[int64(args.NewCourseID)]
	if !ok {
		return clarify(fmt.Sprintf("Khóa học ID %d chưa có trong danh sách khách đã xem, hãy tìm khóa học trước.", args.NewCourseID)), nil
	}

	cart := copyCart(st.Cart)
	delete(cart, int64(args.OldCourseID))
	cart[course.CourseID] = statex.CartItem{CourseID: course.CourseID, Price: course.Price, Subtotal: course.Price}
	return Outcome{
		Message: fmt.Sprintf("Đã đổi sang khóa học '%s' trong giỏ hàng. Đây là giỏ hàng:\n%s\n%s", course.Name, describeCart(st, cart), cartFollowUp),
		Delta:   statex.Delta{Cart: cart},
	}, nil
}

func showCart(_ context.Context, _ Deps, st *statex.ConversationState, _ string) (Outcome, error) {
	if len(st.Cart) == 0 {
		return clarify("Giỏ hàng đang trống, hỏi khách có muốn xem khóa học nào không."), nil
	}
	return clarify("Đây là giỏ hàng của khách:\n" + describeCart(st, st.Cart) + "\n" + cartFollowUp), nil
}
