package specialist

import (
	"strings"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
)

var routePriority = map[contractx.Route]int{
	contractx.RouteEscalation:   100,
	contractx.RouteAdvisor:      50,
	contractx.RouteEnrollment:   50,
	contractx.RouteModification: 50,
	contractx.RouteEnd:          10,
}

// escalationKeywords mark business inquiries and complaints.
var escalationKeywords = []string{
	"công ty",
	"doanh nghiệp",
	"khiếu nại",
	"phàn nàn",
	"bức xúc",
	"gặp nhân viên",
	"gặp quản lý",
	"số lượng lớn",
	"hợp tác",
	"đào tạo nội bộ",
}

// b2bKeywords switch the escalation acknowledgement to business wording.
var b2bKeywords = []string{"công ty", "doanh nghiệp"}

func containsAny(text string, keywords []string) bool {
	text = strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// guardDecision returns the highest priority candidate among the model's choice and
// the routes implied by keywords in the user input.
func guardDecision(dec contractx.Decision, userInput string) contractx.Decision {
	if !containsAny(userInput, escalationKeywords) {
		return dec
	}
	if routePriority[contractx.RouteEscalation] > routePriority[dec.Next] {
		return contractx.Decision{Next: contractx.RouteEscalation}
	}
	return dec
}
