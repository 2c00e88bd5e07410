package specialist

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	promptx "github.com/tanpawarit/Chative-Course-Concierge/agent/prompt"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
	toolx "github.com/tanpawarit/Chative-Course-Concierge/agent/tool"
	"github.com/tanpawarit/Chative-Course-Concierge/pkg/errx"
)

type fakeToolCallingModel struct {
	responses []*schema.Message
	err       error
	idx       int
	inputs    [][]*schema.Message
}

func (f *fakeToolCallingModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	if f.idx >= len(f.responses) {
		return nil, errors.New("no fake response left")
	}
	msg := f.responses[f.idx]
	f.idx++
	return msg, nil
}

func (f *fakeToolCallingModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *fakeToolCallingModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return f, nil
}

type fakeCatalog struct {
	byName []statex.SeenItem
	err    error
}

func (f *fakeCatalog) SearchCoursesByName(context.Context, string, int) ([]statex.SeenItem, error) {
	return f.byName, f.err
}

func (f *fakeCatalog) SearchCoursesSemantic(context.Context, string, int) ([]statex.SeenItem, error) {
	return nil, f.err
}

func (f *fakeCatalog) CoursesByIDs(context.Context, []int64) ([]statex.SeenItem, error) {
	return nil, f.err
}

func (f *fakeCatalog) PromotedCourses(context.Context, int) ([]statex.SeenItem, error) {
	return nil, f.err
}

func (f *fakeCatalog) Schedules(context.Context, int64) ([]contractx.Schedule, error) {
	return nil, f.err
}

func (f *fakeCatalog) SearchQnA(context.Context, string, int) ([]string, error) {
	return nil, f.err
}

type fakeComplaints struct {
	got []contractx.Complaint
	err error
}

func (f *fakeComplaints) InsertComplaint(_ context.Context, c contractx.Complaint) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.got = append(f.got, c)
	return int64(len(f.got)), nil
}

type recordingNotifier struct {
	escalations []contractx.EscalationAlert
	err         error
}

func (r *recordingNotifier) NotifyEscalation(_ context.Context, a contractx.EscalationAlert) error {
	r.escalations = append(r.escalations, a)
	return r.err
}

func (r *recordingNotifier) NotifyCourseChange(context.Context, contractx.CourseChangeAlert) error {
	return nil
}

type recordingSheets struct {
	complaints []contractx.ComplaintRow
	err        error
}

func (r *recordingSheets) AppendComplaint(_ context.Context, row contractx.ComplaintRow) error {
	r.complaints = append(r.complaints, row)
	return r.err
}

func (r *recordingSheets) AppendOrder(context.Context, contractx.OrderRow) error {
	return nil
}

func turnState(input string) *statex.ConversationState {
	st := statex.New("sess-1")
	st.ConversationID = "chat-1"
	st.UserInput = input
	st.Messages = append(st.Messages, schema.UserMessage(input))
	return st
}

func getCoursesCall(id, keywords string) schema.ToolCall {
	return schema.ToolCall{
		ID: id,
		Function: schema.FunctionCall{
			Name:      toolx.ToolGetCourses,
			Arguments: `{"keywords":"` + keywords + `"}`,
		},
	}
}

var python = statex.SeenItem{CourseID: 7, Name: "Python cơ bản", DurationWeeks: 8, Price: 3_000_000}

/* -------------------------------- router -------------------------------- */

func TestRouterDecideSuccess(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{responses: []*schema.Message{
		schema.AssistantMessage(`{"next":"enrollment"}`, nil),
	}}
	router, err := newRouter(context.Background(), fake, "router prompt")
	if err != nil {
		t.Fatalf("newRouter() error = %v", err)
	}

	dec, err := router.Decide(context.Background(), turnState("em muốn đăng ký khóa Python"))
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if dec.Next != contractx.RouteEnrollment {
		t.Fatalf("unexpected route: %s", dec.Next)
	}
	if dec.ClosingMessage != "" {
		t.Fatalf("closing message should only be set for end, got %q", dec.ClosingMessage)
	}
}

func TestRouterEndCarriesClosingMessage(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{responses: []*schema.Message{
		schema.AssistantMessage(`{"next":"__end__","closing_message":"Dạ em chào anh/chị ạ!"}`, nil),
	}}
	router, err := newRouter(context.Background(), fake, "router prompt")
	if err != nil {
		t.Fatalf("newRouter() error = %v", err)
	}

	dec, err := router.Decide(context.Background(), turnState("cảm ơn em nhé"))
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if dec.Next != contractx.RouteEnd || dec.ClosingMessage != "Dạ em chào anh/chị ạ!" {
		t.Fatalf("unexpected decision: %#v", dec)
	}
}

func TestRouterUpgradesBusinessInquiryToEscalation(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{responses: []*schema.Message{
		schema.AssistantMessage(`{"next":"course_advisor"}`, nil),
	}}
	router, err := newRouter(context.Background(), fake, "router prompt")
	if err != nil {
		t.Fatalf("newRouter() error = %v", err)
	}

	dec, err := router.Decide(context.Background(), turnState("Công ty em cần đào tạo Python cho 20 nhân viên"))
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if dec.Next != contractx.RouteEscalation {
		t.Fatalf("expected escalation, got %s", dec.Next)
	}
}

func TestRouterRejectsUnknownRoute(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{responses: []*schema.Message{
		schema.AssistantMessage(`{"next":"billing"}`, nil),
	}}
	router, err := newRouter(context.Background(), fake, "router prompt")
	if err != nil {
		t.Fatalf("newRouter() error = %v", err)
	}

	_, err = router.Decide(context.Background(), turnState("xin chào"))
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("expected ErrSchemaViolation, got %v", err)
	}
	if !errors.Is(err, contractx.ErrUnknownRoute) {
		t.Fatalf("expected ErrUnknownRoute, got %v", err)
	}
}

func TestRouterModelFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{err: errors.New("quota exceeded")}
	router, err := newRouter(context.Background(), fake, "router prompt")
	if err != nil {
		t.Fatalf("newRouter() error = %v", err)
	}

	_, err = router.Decide(context.Background(), turnState("xin chào"))
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}
}

func TestNewRouterRequiresPrompt(t *testing.T) {
	t.Parallel()

	_, err := newRouter(context.Background(), &fakeToolCallingModel{}, "  ")
	if !errors.Is(err, contractx.ErrPromptMissing) {
		t.Fatalf("expected ErrPromptMissing, got %v", err)
	}
}

func TestGuardDecision(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		model contractx.Route
		input string
		want  contractx.Route
	}{
		{name: "no keyword keeps model route", model: contractx.RouteAdvisor, input: "khóa IELTS học mấy buổi", want: contractx.RouteAdvisor},
		{name: "complaint beats handler", model: contractx.RouteModification, input: "Tôi muốn khiếu nại về lớp học", want: contractx.RouteEscalation},
		{name: "keyword beats end", model: contractx.RouteEnd, input: "cho tôi gặp quản lý", want: contractx.RouteEscalation},
		{name: "escalation stays", model: contractx.RouteEscalation, input: "doanh nghiệp", want: contractx.RouteEscalation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := guardDecision(contractx.Decision{Next: tc.model}, tc.input)
			if got.Next != tc.want {
				t.Fatalf("guardDecision(%s, %q) = %s, want %s", tc.model, tc.input, got.Next, tc.want)
			}
		})
	}
}

/* ------------------------------- tool loop ------------------------------- */

func TestToolLoopRunsToolsThenReplies(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{responses: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{getCoursesCall("", "python")}),
		schema.AssistantMessage("Khóa Python cơ bản học 8 tuần, học phí 3,000,000 VNĐ ạ.", nil),
	}}
	h, err := newToolLoopHandler(context.Background(), loopConfig{
		Route:        contractx.RouteAdvisor,
		ToolModel:    fake,
		SystemPrompt: "advisor prompt",
		Tools:        toolx.Deps{Catalog: &fakeCatalog{byName: []statex.SeenItem{python}}},
	})
	if err != nil {
		t.Fatalf("newToolLoopHandler() error = %v", err)
	}

	delta, err := h.Handle(context.Background(), turnState("khóa python học bao lâu"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if _, ok := delta.SeenItems[python.CourseID]; !ok {
		t.Fatalf("tool delta not carried: %#v", delta.SeenItems)
	}
	if delta.RoutingDecision == nil || *delta.RoutingDecision != statex.RouteEnd {
		t.Fatalf("routing decision should be end, got %v", delta.RoutingDecision)
	}
	if len(delta.Messages) != 3 {
		t.Fatalf("expected assistant call, tool result and reply, got %d messages", len(delta.Messages))
	}
	call, result, reply := delta.Messages[0], delta.Messages[1], delta.Messages[2]
	if len(call.ToolCalls) != 1 || call.ToolCalls[0].ID == "" {
		t.Fatalf("tool call id should be assigned: %#v", call.ToolCalls)
	}
	if result.Role != schema.Tool || result.ToolCallID != call.ToolCalls[0].ID {
		t.Fatalf("tool result not paired with call: %#v", result)
	}
	if !strings.Contains(reply.Content, "Python") {
		t.Fatalf("unexpected reply: %q", reply.Content)
	}
}

func TestToolLoopLimitForcesWrapUp(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{responses: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{
			getCoursesCall("a", "python"),
			getCoursesCall("b", "sql"),
		}),
		schema.AssistantMessage("Dạ em gửi anh/chị thông tin khóa Python ạ.", nil),
	}}
	h, err := newToolLoopHandler(context.Background(), loopConfig{
		Route:        contractx.RouteAdvisor,
		ToolModel:    fake,
		SystemPrompt: "advisor prompt",
		Tools:        toolx.Deps{Catalog: &fakeCatalog{byName: []statex.SeenItem{python}}},
		MaxToolCalls: 1,
	})
	if err != nil {
		t.Fatalf("newToolLoopHandler() error = %v", err)
	}

	delta, err := h.Handle(context.Background(), turnState("cho em xem khóa python và sql"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if len(fake.inputs) != 2 {
		t.Fatalf("expected two model calls, got %d", len(fake.inputs))
	}
	last := fake.inputs[1]
	notice := last[len(last)-1]
	if notice.Role != schema.System || !strings.Contains(notice.Content, "SYSTEM NOTICE") {
		t.Fatalf("wrap up should end with the limit notice, got %#v", notice)
	}

	// call, two tool results (one skipped), reply
	if len(delta.Messages) != 4 {
		t.Fatalf("unexpected message count: %d", len(delta.Messages))
	}
	if !strings.Contains(delta.Messages[2].Content, "maximum tool call limit") {
		t.Fatalf("second call should be answered with the notice, got %q", delta.Messages[2].Content)
	}
}

func TestToolLoopPropagatesToolFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{responses: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{getCoursesCall("a", "python")}),
	}}
	backendErr := errx.Persistence(errors.New("connection refused"), "search courses")
	h, err := newToolLoopHandler(context.Background(), loopConfig{
		Route:        contractx.RouteAdvisor,
		ToolModel:    fake,
		SystemPrompt: "advisor prompt",
		Tools:        toolx.Deps{Catalog: &fakeCatalog{err: backendErr}},
	})
	if err != nil {
		t.Fatalf("newToolLoopHandler() error = %v", err)
	}

	_, err = h.Handle(context.Background(), turnState("khóa python"))
	if err == nil {
		t.Fatal("expected error but got nil")
	}
	if errx.KindOf(err) != errx.KindPersistence {
		t.Fatalf("expected persistence kind, got %s (%v)", errx.KindOf(err), err)
	}
}

func TestToolLoopEmptyReplyIsSchemaViolation(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{responses: []*schema.Message{
		schema.AssistantMessage("   ", nil),
	}}
	h, err := newToolLoopHandler(context.Background(), loopConfig{
		Route:        contractx.RouteEnrollment,
		ToolModel:    fake,
		SystemPrompt: "enrollment prompt",
		Tools:        toolx.Deps{Catalog: &fakeCatalog{}},
	})
	if err != nil {
		t.Fatalf("newToolLoopHandler() error = %v", err)
	}

	_, err = h.Handle(context.Background(), turnState("đăng ký"))
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("expected ErrSchemaViolation, got %v", err)
	}
}

/* ------------------------------ escalation ------------------------------ */

func TestEscalationRecordsAndAcknowledges(t *testing.T) {
	t.Parallel()

	summarizer := &fakeToolCallingModel{responses: []*schema.Message{
		schema.AssistantMessage("Doanh nghiệp cần đào tạo Python cho 20 nhân viên.", nil),
	}}
	complaints := &fakeComplaints{}
	notifier := &recordingNotifier{}
	sheets := &recordingSheets{}
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	h, err := newEscalationHandler(context.Background(), escalationConfig{
		Model:        summarizer,
		SystemPrompt: "summarizer prompt",
		Complaints:   complaints,
		Sheets:       sheets,
		Notifier:     notifier,
		HistoryURL:   "https://crm.example.com/chats",
		Now:          func() time.Time { return at },
	})
	if err != nil {
		t.Fatalf("newEscalationHandler() error = %v", err)
	}

	st := turnState("Công ty em cần đào tạo Python cho 20 nhân viên")
	st.CustomerID = 42
	st.Name = "Lan"
	st.Phone = "0901234567"

	delta, err := h.Handle(context.Background(), st)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if len(delta.Messages) != 1 || delta.Messages[0].Content != ackBusiness {
		t.Fatalf("expected business acknowledgement, got %#v", delta.Messages)
	}
	if len(complaints.got) != 1 || complaints.got[0].StudentID != 42 {
		t.Fatalf("complaint not recorded: %#v", complaints.got)
	}
	if len(notifier.escalations) != 1 {
		t.Fatalf("expected one escalation alert, got %d", len(notifier.escalations))
	}
	alert := notifier.escalations[0]
	if alert.IssueSummary != "Doanh nghiệp cần đào tạo Python cho 20 nhân viên." || alert.ChatHistoryURL != "https://crm.example.com/chats" {
		t.Fatalf("unexpected alert: %#v", alert)
	}
	if len(sheets.complaints) != 1 {
		t.Fatalf("expected one sheet row, got %d", len(sheets.complaints))
	}
	row := sheets.complaints[0]
	if row.CustomerID != "42" || row.Priority != "High" || !row.At.Equal(at) {
		t.Fatalf("unexpected sheet row: %#v", row)
	}
}

func TestEscalationDefaultAcknowledgement(t *testing.T) {
	t.Parallel()

	summarizer := &fakeToolCallingModel{responses: []*schema.Message{
		schema.AssistantMessage("", nil),
	}}
	notifier := &recordingNotifier{}
	h, err := newEscalationHandler(context.Background(), escalationConfig{
		Model:        summarizer,
		SystemPrompt: "summarizer prompt",
		Complaints:   &fakeComplaints{},
		Notifier:     notifier,
	})
	if err != nil {
		t.Fatalf("newEscalationHandler() error = %v", err)
	}

	delta, err := h.Handle(context.Background(), turnState("Tôi muốn khiếu nại giảng viên"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if delta.Messages[0].Content != ackDefault {
		t.Fatalf("expected default acknowledgement, got %q", delta.Messages[0].Content)
	}
	if notifier.escalations[0].IssueSummary != "Tôi muốn khiếu nại giảng viên" {
		t.Fatalf("empty summary should fall back to the user input, got %q", notifier.escalations[0].IssueSummary)
	}
}

func TestEscalationComplaintFailureAborts(t *testing.T) {
	t.Parallel()

	summarizer := &fakeToolCallingModel{responses: []*schema.Message{
		schema.AssistantMessage("tóm tắt", nil),
	}}
	notifier := &recordingNotifier{}
	h, err := newEscalationHandler(context.Background(), escalationConfig{
		Model:        summarizer,
		SystemPrompt: "summarizer prompt",
		Complaints:   &fakeComplaints{err: errx.Persistence(errors.New("db down"), "insert complaint")},
		Notifier:     notifier,
	})
	if err != nil {
		t.Fatalf("newEscalationHandler() error = %v", err)
	}

	if _, err := h.Handle(context.Background(), turnState("phàn nàn")); errx.KindOf(err) != errx.KindPersistence {
		t.Fatalf("expected persistence failure, got %v", err)
	}
	if len(notifier.escalations) != 0 {
		t.Fatalf("no alert should be sent when the complaint is not stored")
	}
}

func TestEscalationSideChannelFailureStillAcknowledges(t *testing.T) {
	t.Parallel()

	summarizer := &fakeToolCallingModel{responses: []*schema.Message{
		schema.AssistantMessage("tóm tắt", nil),
	}}
	notifier := &recordingNotifier{err: errors.New("lark down")}
	sheets := &recordingSheets{err: errors.New("bitable down")}
	h, err := newEscalationHandler(context.Background(), escalationConfig{
		Model:        summarizer,
		SystemPrompt: "summarizer prompt",
		Complaints:   &fakeComplaints{},
		Sheets:       sheets,
		Notifier:     notifier,
	})
	if err != nil {
		t.Fatalf("newEscalationHandler() error = %v", err)
	}

	delta, err := h.Handle(context.Background(), turnState("phàn nàn"))
	if err != nil {
		t.Fatalf("side channel failures must not abort escalation, got %v", err)
	}
	if len(delta.Messages) != 1 || len(notifier.escalations) != 1 || len(sheets.complaints) != 1 {
		t.Fatalf("unexpected outcome: %#v", delta)
	}
}

/* ------------------------------- registry ------------------------------- */

func TestNewRegistryServesEveryHandlerRoute(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{}
	reg, err := NewRegistry(context.Background(), Deps{
		Models:     Models{Router: fake, Specialist: fake},
		Prompts:    promptSetForTest(),
		Tools:      toolx.Deps{Catalog: &fakeCatalog{}},
		Complaints: &fakeComplaints{},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if reg.Router() == nil {
		t.Fatal("router is nil")
	}
	for _, route := range contractx.HandlerRoutes {
		if _, ok := reg.Handler(route); !ok {
			t.Fatalf("missing handler for %s", route)
		}
	}
	if _, ok := reg.Handler(contractx.RouteEnd); ok {
		t.Fatal("end must not have a handler")
	}
}

func promptSetForTest() promptx.PromptSet {
	return promptx.PromptSet{
		Router:       "router prompt",
		Advisor:      "advisor prompt",
		Enrollment:   "enrollment prompt",
		Modification: "modification prompt",
		Summarizer:   "summarizer prompt",
	}
}
