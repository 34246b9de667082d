package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadsync/internal/config"
	"github.com/sells-group/leadsync/internal/leadsync"
	"github.com/sells-group/leadsync/internal/mapping"
	"github.com/sells-group/leadsync/internal/resilience"
	"github.com/sells-group/leadsync/internal/schema"
	"github.com/sells-group/leadsync/internal/store"
	"github.com/sells-group/leadsync/internal/welcome"
	"github.com/sells-group/leadsync/pkg/bitrix"
	"github.com/sells-group/leadsync/pkg/notion"
	"github.com/sells-group/leadsync/pkg/vk"
)

// appEnv holds the wired services used by the serve, sync and schema
// commands.
type appEnv struct {
	Store        store.Store // nil when the journal is disabled
	Bitrix       bitrix.Client
	Schema       *schema.Resolver
	Orchestrator *leadsync.Orchestrator
	Welcome      *welcome.Service // nil without a messaging token
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp validates the config for mode and wires every service. Callers
// should defer env.Close().
func initApp(ctx context.Context, c *config.Config, mode string) (*appEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	client, err := newBitrixClient(c.Bitrix)
	if err != nil {
		return nil, err
	}

	static, err := mapping.LoadSources(ctx, mappingSources(c))
	if err != nil {
		return nil, eris.Wrap(err, "load static mapping")
	}

	policy, err := leadsync.ParseLookupPolicy(c.Sync.OnLookupError)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx, c.Store)
	if err != nil {
		return nil, err
	}

	resolver := schema.New(client)
	contacts := leadsync.NewContactResolver(client,
		leadsync.WithDefaultName(c.Deal.DefaultContactName),
		leadsync.WithLookupPolicy(policy),
	)
	builder := leadsync.NewDealBuilder(dealConfig(c.Deal))

	opts := []leadsync.Option{
		leadsync.WithRequirePhone(c.Sync.RequirePhone),
		leadsync.WithContactLink(c.Sync.LinkContact),
		leadsync.WithDynamicSchema(c.Mapping.Dynamic),
	}
	if st != nil {
		opts = append(opts, leadsync.WithRecorder(st))
	}
	orch := leadsync.NewOrchestrator(client, resolver, contacts, mapping.NewMapper(static), builder, opts...)

	env := &appEnv{
		Store:        st,
		Bitrix:       client,
		Schema:       resolver,
		Orchestrator: orch,
	}

	if c.VK.GroupToken != "" {
		svc, err := newWelcome(c.VK)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Welcome = svc
	} else {
		zap.L().Debug("LEADSYNC_VK_GROUP_TOKEN not set, welcome messages disabled")
	}

	zap.L().Info("leadsync initialized",
		zap.Int("static_fields", len(static)),
		zap.Bool("dynamic_schema", c.Mapping.Dynamic),
		zap.String("lookup_policy", string(policy)),
		zap.Bool("journal", st != nil),
		zap.Bool("welcome", env.Welcome != nil),
	)
	return env, nil
}

// newBitrixClient builds the webhook client with rate limiting, retries and
// a circuit breaker from config.
func newBitrixClient(c config.BitrixConfig) (bitrix.Client, error) {
	timeout := time.Duration(c.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retry := resilience.FromRetryConfig(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs)
	retry.OnRetry = resilience.RetryLogger("bitrix", "call")

	return bitrix.NewClient(c.WebhookURL,
		bitrix.WithHTTPClient(&http.Client{Timeout: timeout}),
		bitrix.WithRateLimit(c.RateLimit),
		bitrix.WithRetry(retry),
		bitrix.WithCircuitBreaker(resilience.NewCircuitBreaker(
			resilience.FromCircuitConfig("bitrix", c.Circuit.FailureThreshold, c.Circuit.ResetTimeoutSecs),
		)),
	)
}

func newWelcome(c config.VKConfig) (*welcome.Service, error) {
	client, err := vk.NewClient(c.GroupToken,
		vk.WithAPIVersion(c.APIVersion),
		vk.WithRateLimit(c.RateLimit),
		vk.WithRetry(resilience.DefaultRetryConfig()),
	)
	if err != nil {
		return nil, err
	}
	return welcome.New(client, welcome.Config{
		Header:      c.Header,
		ProjectsURL: c.ProjectsURL,
		ReviewsURL:  c.ReviewsURL,
		ErrorsURL:   c.ErrorsURL,
	}), nil
}

func mappingSources(c *config.Config) mapping.Sources {
	src := mapping.Sources{
		Inline: c.Mapping.Static,
		Path:   c.Mapping.StaticPath,
	}
	if c.Notion.Token != "" && c.Notion.FieldDB != "" {
		src.NotionClient = notion.NewClient(c.Notion.Token, notion.WithRetry(resilience.DefaultRetryConfig()))
		src.NotionDB = c.Notion.FieldDB
	}
	return src
}

func dealConfig(c config.DealConfig) leadsync.DealConfig {
	return leadsync.DealConfig{
		TitlePrefix:       c.TitlePrefix,
		SourceID:          c.SourceID,
		SourceDescription: c.SourceDescription,
		AssignedByID:      c.AssignedByID,
		CategoryID:        c.CategoryID,
		StageID:           c.StageID,
		AnswerLabels:      c.SummaryLabels,
	}
}

// initStore opens the configured journal. It returns nil when the driver is
// "none".
func initStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	sc := store.Config{Driver: c.Driver, DatabaseURL: c.DatabaseURL}
	if c.MaxConns > 0 || c.MinConns > 0 {
		sc.Pool = &store.PoolConfig{MaxConns: c.MaxConns, MinConns: c.MinConns}
	}
	st, err := store.Open(ctx, sc)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}
