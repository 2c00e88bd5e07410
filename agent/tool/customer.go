package tool

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
)

func modifyCustomer(ctx context.Context, d Deps, st *statex.ConversationState, raw string) (Outcome, error) {
	var args profileArgs
	if !decodeArgs(raw, &args) {
		return clarify(msgBadArgs), nil
	}
	patch := contractx.ProfilePatch{
		Name:  strings.TrimSpace(args.NewName),
		Phone: strings.TrimSpace(args.NewPhone),
		Email: strings.TrimSpace(args.NewEmail),
	}
	if patch.Empty() {
		return clarify("Khách phải cung cấp ít nhất một thông tin: tên, số điện thoại hoặc email để cập nhật, hỏi khách."), nil
	}
	if st.CustomerID == 0 {
		return clarify("Chưa xác định được hồ sơ học viên, xin lỗi khách và nhờ khách thử lại sau."), nil
	}

	c, err := d.Customers.UpdateProfile(ctx, st.CustomerID, patch)
	if err != nil {
		return Outcome{}, err
	}

	msg := fmt.Sprintf("Đã cập nhật thông tin học viên thành công:\n- Tên học viên: %s\n- Số điện thoại: %s\n- Email: %s\n"+
		"Nếu học viên đang trong quá trình lên đơn thì hỏi học viên có muốn lên đơn luôn không.",
		orDefault(c.Name, notAvailable), orDefault(c.Phone, notAvailable), orDefault(c.Email, notAvailable))

	var delta statex.Delta
	if c.Name != "" {
		delta.Name = statex.String(c.Name)
	}
	if c.Phone != "" {
		delta.Phone = statex.String(c.Phone)
	}
	if c.Email != "" {
		delta.Email = statex.String(c.Email)
	}
	return Outcome{Message: msg, Delta: delta}, nil
}
