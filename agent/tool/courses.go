package tool

import (
	"context"
	"fmt"
	"strings"

	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
)

const (
	courseSearchLimit = 5
	qnaSearchLimit    = 3
	promotionLimit    = 10
)

func getCourses(ctx context.Context, d Deps, st *statex.ConversationState, raw string) (Outcome, error) {
	var args keywordArgs
	if !decodeArgs(raw, &args) {
		return clarify(msgBadArgs), nil
	}
	keywords := strings.TrimSpace(args.Keywords)
	if keywords == "" {
		return clarify("Không xác định được khóa học khách quan tâm, hỏi lại khách tên hoặc nội dung khóa học."), nil
	}

	found, err := d.Catalog.SearchCoursesByName(ctx, keywords, courseSearchLimit)
	if err != nil {
		return Outcome{}, err
	}
	if len(found) == 0 {
		query := strings.TrimSpace(st.UserInput + ". " + keywords)
		found, err = d.Catalog.SearchCoursesSemantic(ctx, query, courseSearchLimit)
		if err != nil {
			return Outcome{}, err
		}
	}
	if len(found) == 0 {
		return clarify("Xin lỗi, em không tìm thấy khóa học nào liên quan đến câu hỏi của anh/chị."), nil
	}

	var b strings.Builder
	b.WriteString("Đây là các khóa học tìm thấy dựa trên yêu cầu của khách:\n")
	for _, c := range found {
		describeCourse(&b, c)
	}
	b.WriteString("\nTóm gọn lại thông tin khóa học một cách ngắn gọn và dễ hiểu.\n")
	if st.Phone != "" {
		b.WriteString("Hỏi khách có muốn đăng ký khóa học nào không.")
	} else {
		b.WriteString("Để tiện tư vấn đăng ký, xin khách số điện thoại.")
	}

	return Outcome{
		Message: b.String(),
		Delta:   statex.Delta{SeenItems: copySeen(st.SeenItems, found)},
	}, nil
}

func getQnA(ctx context.Context, d Deps, st *statex.ConversationState, _ string) (Outcome, error) {
	query := strings.TrimSpace(st.UserInput)
	if query == "" {
		return clarify("Không xác định được câu hỏi của khách, hỏi lại khách."), nil
	}
	docs, err := d.Catalog.SearchQnA(ctx, query, qnaSearchLimit)
	if err != nil {
		return Outcome{}, err
	}
	if len(docs) == 0 {
		return clarify("Xin lỗi, em không tìm thấy thông tin nào liên quan đến câu hỏi của anh/chị."), nil
	}
	var b strings.Builder
	b.WriteString("Đây là các thông tin tìm thấy liên quan đến câu hỏi của khách:\n")
	for _, doc := range docs {
		fmt.Fprintf(&b, "- %s\n", doc)
	}
	return clarify(b.String()), nil
}

func getSchedule(ctx context.Context, d Deps, _ *statex.ConversationState, raw string) (Outcome, error) {
	var args courseArgs
	if !decodeArgs(raw, &args) {
		return clarify(msgBadArgs), nil
	}
	if args.CourseID == 0 {
		return clarify("Không xác định được khóa học, hãy hỏi lại khách muốn xem lịch học của khóa nào."), nil
	}
	schedules, err := d.Catalog.Schedules(ctx, int64(args.CourseID))
	if err != nil {
		return Outcome{}, err
	}
	if len(schedules) == 0 {
		return clarify("Xin lỗi, hiện tại chưa có lịch học cho khóa học này. Em sẽ cập nhật sớm nhất ạ."), nil
	}
	var b strings.Builder
	b.WriteString("Dạ, đây là lịch học chi tiết của khóa học ạ:\n\n")
	for i, s := range schedules {
		fmt.Fprintf(&b, "Lịch học %d:\n- Hình thức: %s\n- Thời gian: %s, các ngày %s\n- Khai giảng: %s\n- Kết thúc: %s\n- Địa điểm/Link học: %s\n\n",
			i+1, s.Mode, s.Time, s.DaysOfWeek,
			s.StartDate.Format(statex.DayLayout), s.EndDate.Format(statex.DayLayout), orDefault(s.LocationLink, notAvailable))
	}
	return clarify(b.String()), nil
}

func getPromotions(ctx context.Context, d Deps, st *statex.ConversationState, _ string) (Outcome, error) {
	promoted, err := d.Catalog.PromotedCourses(ctx, promotionLimit)
	if err != nil {
		return Outcome{}, err
	}
	if len(promoted) == 0 {
		return clarify("Dạ hiện tại trung tâm chưa có chương trình ưu đãi đặc biệt nào ạ. Anh/chị có thể tham khảo các khóa học chất lượng cao của bên em nhé."), nil
	}
	lines := []string{"Dạ hiện tại trung tâm đang có các ưu đãi hấp dẫn cho những khóa học sau ạ:"}
	for _, c := range promoted {
		lines = append(lines, fmt.Sprintf("- Khóa học '%s' (ID: %d): Giảm %.0f%%, giá gốc %s chỉ còn %s.",
			c.Name, c.CourseID, c.Promotion*100, vnd(c.Price), vnd(c.DiscountedPrice())))
	}
	lines = append(lines, "", "Anh/chị quan tâm đến khóa học nào để em tư vấn chi tiết hơn ạ?")
	return Outcome{
		Message: strings.Join(lines, "\n"),
		Delta:   statex.Delta{SeenItems: copySeen(st.SeenItems, promoted)},
	}, nil
}
