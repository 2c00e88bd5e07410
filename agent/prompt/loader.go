package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/router.txt
	routerRaw string

	//go:embed template/advisor.txt
	advisorRaw string

	//go:embed template/enrollment.txt
	enrollmentRaw string

	//go:embed template/modification.txt
	modificationRaw string

	//go:embed template/summarizer.txt
	summarizerRaw string
)

// PromptSet holds the system prompts. They are rendered with schema.FString, so
// literal braces in the text are doubled.
type PromptSet struct {
	Router       string
	Advisor      string
	Enrollment   string
	Modification string
	Summarizer   string
}

func LoadPromptSet() PromptSet {
	return PromptSet{
		Router:       strings.TrimSpace(routerRaw),
		Advisor:      strings.TrimSpace(advisorRaw),
		Enrollment:   strings.TrimSpace(enrollmentRaw),
		Modification: strings.TrimSpace(modificationRaw),
		Summarizer:   strings.TrimSpace(summarizerRaw),
	}
}
