package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

const (
	ackBusiness = "Dạ cảm ơn anh/chị. Với nhu cầu đào tạo cho doanh nghiệp, em đã chuyển yêu cầu của anh/chị đến bộ phận chuyên trách. " +
		"Chuyên viên sẽ liên hệ với mình trong vòng 30 phút nữa ạ."
	ackDefault = "Dạ em rất hiểu băn khoăn của anh/chị. Em xin phép ghi nhận và kết nối mình với chuyên viên cấp cao để giải đáp chi tiết hơn. " +
		"Chuyên viên sẽ sớm liên hệ với mình ạ."

	complaintPlatform = "Chatbot"
	complaintPriority = "High"
	complaintType     = "Escalation"
)

// escalationHandler hands the conversation to a human. It never runs tools.
type escalationHandler struct {
	summarizer compose.Runnable[map[string]any, *schema.Message]
	complaints contractx.ComplaintStore
	sheets     contractx.SheetLogger
	notifier   contractx.Notifier
	historyURL string
	now        func() time.Time
}

type escalationConfig struct {
	Model        einomodel.BaseChatModel
	SystemPrompt string
	Complaints   contractx.ComplaintStore
	Sheets       contractx.SheetLogger
	Notifier     contractx.Notifier
	HistoryURL   string
	Now          func() time.Time
}

func newEscalationHandler(ctx context.Context, cfg escalationConfig) (*escalationHandler, error) {
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		return nil, fmt.Errorf("%w: summarizer", contractx.ErrPromptMissing)
	}
	if cfg.Complaints == nil {
		return nil, fmt.Errorf("%w: complaint store is required", contractx.ErrValidation)
	}
	runner, err := compileTextGraph(ctx, cfg.Model, cfg.SystemPrompt, "escalation.summarizer_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile summarizer graph: %v", contractx.ErrModelInvoke, err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &escalationHandler{
		summarizer: runner,
		complaints: cfg.Complaints,
		sheets:     cfg.Sheets,
		notifier:   cfg.Notifier,
		historyURL: strings.TrimSpace(cfg.HistoryURL),
		now:        now,
	}, nil
}

func (h *escalationHandler) Handle(ctx context.Context, st *statex.ConversationState) (statex.Delta, error) {
	if st == nil {
		return statex.Delta{}, fmt.Errorf("%w: state is required", contractx.ErrValidation)
	}

	lines := transcript(conversationHistory(st.Messages))
	input := "Lịch sử hội thoại:\n" + strings.Join(lines, "\n") + "\n\nTin nhắn cuối của khách: " + st.UserInput
	msg, err := h.summarizer.Invoke(ctx, map[string]any{"input": input})
	if err != nil {
		return statex.Delta{}, fmt.Errorf("%w: summarizer invoke: %v", contractx.ErrModelInvoke, err)
	}
	summary := ""
	if msg != nil {
		summary = strings.TrimSpace(msg.Content)
	}
	if summary == "" {
		summary = st.UserInput
	}

	history, err := json.Marshal(st.Messages)
	if err != nil {
		return statex.Delta{}, fmt.Errorf("%w: marshal chat history: %v", contractx.ErrValidation, err)
	}
	snapshot, err := json.Marshal(st)
	if err != nil {
		return statex.Delta{}, fmt.Errorf("%w: marshal state: %v", contractx.ErrValidation, err)
	}

	complaintID, err := h.complaints.InsertComplaint(ctx, contractx.Complaint{
		StudentID:     st.CustomerID,
		Name:          st.Name,
		Phone:         st.Phone,
		Email:         st.Email,
		ChatHistories: string(history),
		StateJSON:     string(snapshot),
	})
	if err != nil {
		return statex.Delta{}, err
	}

	if h.sheets != nil {
		customerID := ""
		if st.CustomerID != 0 {
			customerID = strconv.FormatInt(st.CustomerID, 10)
		}
		err := h.sheets.AppendComplaint(ctx, contractx.ComplaintRow{
			CustomerID:    customerID,
			ChatID:        st.ConversationID,
			Name:          st.Name,
			Phone:         st.Phone,
			Platform:      complaintPlatform,
			ChatHistories: string(history),
			Summary:       st.UserInput,
			Type:          complaintType,
			Priority:      complaintPriority,
			At:            h.now(),
		})
		if err != nil {
			logx.Warn().Err(err).Str("session_id", st.SessionID).Msg("failed to log complaint to sheet")
		}
	}
	if h.notifier != nil {
		err := h.notifier.NotifyEscalation(ctx, contractx.EscalationAlert{
			CustomerName:   st.Name,
			CustomerPhone:  st.Phone,
			IssueSummary:   summary,
			ChatHistoryURL: h.historyURL,
		})
		if err != nil {
			logx.Warn().Err(err).Str("session_id", st.SessionID).Msg("failed to send escalation alert")
		}
	}

	logx.Info().
		Str("session_id", st.SessionID).
		Int64("complaint_id", complaintID).
		Msg("conversation escalated")

	return statex.Delta{
		Messages:        []*schema.Message{schema.AssistantMessage(acknowledgement(st.UserInput), nil)},
		RoutingDecision: statex.String(statex.RouteEnd),
	}, nil
}

func acknowledgement(userInput string) string {
	if containsAny(userInput, b2bKeywords) {
		return ackBusiness
	}
	return ackDefault
}
