package llm

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	geminix "github.com/tanpawarit/Chative-Course-Concierge/pkg/gemini"
	openrouterx "github.com/tanpawarit/Chative-Course-Concierge/pkg/openrouter"
)

type Role string

const (
	RoleRouter     Role = "router"
	RoleSpecialist Role = "specialist"
	RoleSummarizer Role = "summarizer"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// Config selects the provider and per-role overrides. Empty models and negative
// temperatures fall back to the provider defaults.
type Config struct {
	Provider string `split_words:"true" default:"openrouter"`

	RouterModel     string `split_words:"true"`
	SpecialistModel string `split_words:"true"`
	SummarizerModel string `split_words:"true"`

	RouterTemperature     float32 `split_words:"true" default:"0"`
	SpecialistTemperature float32 `split_words:"true" default:"-1"`
	SummarizerTemperature float32 `split_words:"true" default:"-1"`
}

// Providers carries the provider configs loaded under their own prefixes.
type Providers struct {
	OpenRouter *openrouterx.Config
	Gemini     *geminix.Config
}

func (c Config) provider() string {
	p := strings.ToLower(strings.TrimSpace(c.Provider))
	if p == "" {
		return ProviderOpenRouter
	}
	return p
}

func (c Config) Validate(p Providers) error {
	switch c.provider() {
	case ProviderOpenRouter:
		if p.OpenRouter == nil || strings.TrimSpace(p.OpenRouter.APIKey) == "" {
			return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
		}
		if strings.TrimSpace(p.OpenRouter.Model) == "" {
			return fmt.Errorf("%w: openrouter default model is required", contractx.ErrValidation)
		}
	case ProviderGemini:
		if p.Gemini == nil || strings.TrimSpace(p.Gemini.APIKey) == "" {
			return fmt.Errorf("%w: gemini api key is required", contractx.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unsupported llm provider %q", contractx.ErrValidation, c.Provider)
	}
	return nil
}

func (c Config) overrides(role Role) (string, float32) {
	switch role {
	case RoleRouter:
		return strings.TrimSpace(c.RouterModel), c.RouterTemperature
	case RoleSpecialist:
		return strings.TrimSpace(c.SpecialistModel), c.SpecialistTemperature
	case RoleSummarizer:
		return strings.TrimSpace(c.SummarizerModel), c.SummarizerTemperature
	}
	return "", -1
}

// OpenRouterFor applies the role overrides on top of the base OpenRouter config.
func (c Config) OpenRouterFor(role Role, base openrouterx.Config) openrouterx.Config {
	modelName, temp := c.overrides(role)
	if modelName != "" {
		base.Model = modelName
	}
	if temp >= 0 {
		base.Temperature = temp
	}
	return base
}

func (c Config) GeminiFor(role Role, base geminix.Config) geminix.Config {
	modelName, temp := c.overrides(role)
	if modelName != "" {
		base.Model = modelName
	}
	if temp >= 0 {
		base.Temperature = temp
	}
	return base
}

// NewModel builds the chat model for role on the configured provider.
func (c Config) NewModel(ctx context.Context, role Role, p Providers) (einomodel.ToolCallingChatModel, error) {
	if err := c.Validate(p); err != nil {
		return nil, err
	}
	var (
		m   einomodel.ToolCallingChatModel
		err error
	)
	switch c.provider() {
	case ProviderGemini:
		cfg := c.GeminiFor(role, *p.Gemini)
		m, err = cfg.New(ctx)
	default:
		m, err = c.OpenRouterFor(role, *p.OpenRouter).New(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: create %s model: %v", contractx.ErrModelInvoke, role, err)
	}
	return m, nil
}
