package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/redis/go-redis/v9"

	"github.com/tanpawarit/Chative-Course-Concierge/agent/agents/orchestrator"
	"github.com/tanpawarit/Chative-Course-Concierge/agent/agents/specialist"
	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	deliveryx "github.com/tanpawarit/Chative-Course-Concierge/agent/delivery"
	embeddingx "github.com/tanpawarit/Chative-Course-Concierge/agent/embedding"
	llmx "github.com/tanpawarit/Chative-Course-Concierge/agent/llm"
	notifyx "github.com/tanpawarit/Chative-Course-Concierge/agent/notify"
	observerx "github.com/tanpawarit/Chative-Course-Concierge/agent/observer"
	promptx "github.com/tanpawarit/Chative-Course-Concierge/agent/prompt"
	repox "github.com/tanpawarit/Chative-Course-Concierge/agent/repository"
	sessionx "github.com/tanpawarit/Chative-Course-Concierge/agent/session"
	sheetx "github.com/tanpawarit/Chative-Course-Concierge/agent/sheet"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
	toolx "github.com/tanpawarit/Chative-Course-Concierge/agent/tool"
	apix "github.com/tanpawarit/Chative-Course-Concierge/api"
	configx "github.com/tanpawarit/Chative-Course-Concierge/pkg/config"
	geminix "github.com/tanpawarit/Chative-Course-Concierge/pkg/gemini"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
	openrouterx "github.com/tanpawarit/Chative-Course-Concierge/pkg/openrouter"
	postgresx "github.com/tanpawarit/Chative-Course-Concierge/pkg/postgres"
	qstashx "github.com/tanpawarit/Chative-Course-Concierge/pkg/qstash"
	redisx "github.com/tanpawarit/Chative-Course-Concierge/pkg/redis"
)

type AppConfig struct {
	Addr         string `split_words:"true" default:":8080"`
	StateBackend string `split_words:"true" default:"redis"`
	SheetURL     string `split_words:"true"`
}

type ConversationConfig struct {
	ToolMaxCalls       int           `split_words:"true" default:"10"`
	StateTTL           time.Duration `split_words:"true" default:"720h"`
	LockTTL            time.Duration `split_words:"true" default:"2m"`
	DeliveryRetryDelay time.Duration `split_words:"true" default:"5s"`
	TurnTimeout        time.Duration `split_words:"true" default:"90s"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logx.Init(*configx.MustNew[logx.Config]("LOG"))

	appCfg := configx.MustNew[AppConfig]("APP")
	convCfg := configx.MustNew[ConversationConfig]("CONVERSATION")

	rdb := configx.MustNew[redisx.Config]("REDIS").MustNew(ctx)
	defer rdb.Close()
	db := configx.MustNew[postgresx.Config]("POSTGRES").MustNew(ctx)
	defer db.Close()

	store, err := newStateStore(appCfg.StateBackend, rdb, convCfg.StateTTL)
	if err != nil {
		logx.Fatal().Err(err).Str("backend", appCfg.StateBackend).Msg("failed to build state store")
	}

	embedder, err := embeddingx.New(*configx.MustNew[embeddingx.Config]("EMBEDDING"))
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build embedder")
	}

	models, err := newModels(ctx)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build chat models")
	}

	retry := deliveryx.NewRetrier(convCfg.DeliveryRetryDelay)
	customers := repox.NewCustomers(db)
	tools := toolx.Deps{
		Customers: customers,
		Catalog:   repox.NewCourses(db, embedder),
		Orders:    repox.NewOrders(db),
		Notifier:  deliveryx.NewNotifier(newNotifier(), retry),
		Sheets:    deliveryx.NewSheets(newSheets(), retry),
	}

	registry, err := specialist.NewRegistry(ctx, specialist.Deps{
		Models:       models,
		Prompts:      promptx.LoadPromptSet(),
		Tools:        tools,
		Complaints:   repox.NewComplaints(db),
		MaxToolCalls: convCfg.ToolMaxCalls,
		HistoryURL:   appCfg.SheetURL,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build handler registry")
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Resolver:  sessionx.NewResolver(rdb),
		Locker:    sessionx.NewRedisLocker(rdb, convCfg.LockTTL),
		Store:     store,
		Registry:  registry,
		Directory: customers,
		Callbacks: []einocb.Handler{observerx.NewCallbacks()},
	}, orchestrator.Config{TurnTimeout: convCfg.TurnTimeout})
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build orchestrator")
	}

	if err := apix.NewServer(orch).ListenAndServe(ctx, appCfg.Addr); err != nil {
		logx.Fatal().Err(err).Msg("http server stopped")
	}
	logx.Info().Msg("shutdown complete")
}

func newStateStore(backend string, rdb redis.Cmdable, ttl time.Duration) (statex.Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "upstash":
		cfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		return statex.NewUpstashRedisStore(*cfg, statex.WithTTL(ttl))
	default:
		return statex.NewRedisStore(rdb, statex.WithTTL(ttl))
	}
}

// newModels loads only the selected provider's config so the other one's required keys stay optional.
func newModels(ctx context.Context) (specialist.Models, error) {
	llmCfg := configx.MustNew[llmx.Config]("LLM")

	var providers llmx.Providers
	switch strings.ToLower(strings.TrimSpace(llmCfg.Provider)) {
	case llmx.ProviderGemini:
		providers.Gemini = configx.MustNew[geminix.Config]("GEMINI")
	default:
		providers.OpenRouter = configx.MustNew[openrouterx.Config]("OPENROUTER")
	}
	if err := llmCfg.Validate(providers); err != nil {
		return specialist.Models{}, err
	}

	router, err := llmCfg.NewModel(ctx, llmx.RoleRouter, providers)
	if err != nil {
		return specialist.Models{}, err
	}
	spec, err := llmCfg.NewModel(ctx, llmx.RoleSpecialist, providers)
	if err != nil {
		return specialist.Models{}, err
	}
	summarizer, err := llmCfg.NewModel(ctx, llmx.RoleSummarizer, providers)
	if err != nil {
		return specialist.Models{}, err
	}
	return specialist.Models{Router: router, Specialist: spec, Summarizer: summarizer}, nil
}

// newNotifier posts Lark cards, queued through QStash when it is configured.
// Without a webhook, alerts are dropped.
func newNotifier() contractx.Notifier {
	cfg := configx.MustNew[notifyx.Config]("LARK")
	if !cfg.Enabled() {
		logx.Warn().Msg("lark webhook not configured, notifications disabled")
		return deliveryx.Discard{}
	}

	var opts []notifyx.Option
	if qcfg := configx.MustNew[qstashx.Config]("QSTASH"); qcfg.Enabled() {
		opts = append(opts, notifyx.WithPublisher(qstashx.MustNew(*qcfg)))
	}
	lark, err := notifyx.NewLark(*cfg, opts...)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build lark notifier")
	}
	return lark
}

func newSheets() contractx.SheetLogger {
	cfg := configx.MustNew[sheetx.Config]("LARK")
	if !cfg.Enabled() {
		logx.Warn().Msg("lark bitable not configured, sheet logging disabled")
		return deliveryx.Discard{}
	}
	sheets, err := sheetx.NewBitable(*cfg)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build lark bitable client")
	}
	return sheets
}
