// Package wiring assembles the shared dependency graph for a channel worker process: config,
// logger, database, cache, breakers, clients, providers, and the orchestrator built from them.
// Both cmd/email-worker and cmd/push-worker reach Build through workerrun.Main and differ only
// in the channel they pass in; the provider is chosen from config.
package wiring

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/praiz001/notifab/internal/config"
	"github.com/praiz001/notifab/internal/delivery"
	"github.com/praiz001/notifab/internal/gatewayclient"
	"github.com/praiz001/notifab/internal/logging"
	"github.com/praiz001/notifab/internal/orchestrator"
	"github.com/praiz001/notifab/internal/provider"
	"github.com/praiz001/notifab/internal/repository"
	"github.com/praiz001/notifab/internal/resilience"
	"github.com/praiz001/notifab/internal/templateclient"
	"github.com/praiz001/notifab/internal/userclient"

	_ "github.com/lib/pq"
)

// Graph holds every long-lived component a worker main needs, so main() only has to start and
// stop things rather than construct them.
type Graph struct {
	Config       config.Config
	Logger       *logging.Logger
	DB           *sql.DB
	RedisClient  *redis.Client
	RedisConnOpt asynq.RedisConnOpt
	Repo         repository.Repository
	Orchestrator *orchestrator.Orchestrator
	Reconciler   *orchestrator.Reconciler
}

// Build wires everything for channel ("email" or "push"), opening the database with a bounded
// ping-retry loop the way the teacher's cmd/api/main.go waits out Postgres at container
// startup.
func Build(ctx context.Context, channel delivery.Channel) (*Graph, error) {
	cfg := config.Load(string(channel))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("wiring: invalid config: %w", err)
	}

	logCfg := logging.DefaultConfig()
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("wiring: init logger: %w", err)
	}
	if err := logging.Init(logCfg); err != nil {
		return nil, fmt.Errorf("wiring: init global logger: %w", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("wiring: open db: %w", err)
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	const maxRetries = 30
	for i := 0; i < maxRetries; i++ {
		if err := db.PingContext(ctx); err == nil {
			logger.Info("database connection established")
			break
		}
		if i == maxRetries-1 {
			return nil, fmt.Errorf("wiring: database unreachable after %d retries", maxRetries)
		}
		time.Sleep(time.Second)
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("wiring: parse broker url: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.CacheURL)
	if err != nil {
		return nil, fmt.Errorf("wiring: parse cache url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)

	repo := repository.New(db)
	breakers := resilience.NewBreakerRegistry(cfg.BreakerFailureThreshold, cfg.BreakerOpenTimeout)
	cache := resilience.NewPreferenceCache(redisClient, time.Duration(cfg.CacheTTLSeconds)*time.Second)

	userCli := userclient.New(cfg.UserServiceURL, cfg.HTTPTimeout)
	templateCli := templateclient.New(cfg.TemplateServiceURL, cfg.HTTPTimeout)
	gatewayCli := gatewayclient.New(cfg.GatewayURL, cfg.HTTPTimeout)

	senders := provider.NewRegistry()
	registerProviders(senders, cfg)

	orch := &orchestrator.Orchestrator{
		Channel:      channel,
		Repo:         repo,
		Breakers:     breakers,
		Cache:        cache,
		UserClient:   userCli,
		TemplateCli:  templateCli,
		GatewayCli:   gatewayCli,
		Senders:      senders,
		ProviderName: cfg.Provider,
		Retry: orchestrator.RetryPolicy{
			MaxAttempts: cfg.MaxRetryAttempts,
			MinWait:     cfg.RetryMinWait,
			MaxWait:     cfg.RetryMaxWait,
			Multiplier:  cfg.RetryMultiplier,
		},
		Logger: logger,
	}

	reconciler := &orchestrator.Reconciler{
		Repo:       repo,
		Logger:     logger,
		StaleAfter: 10 * time.Minute,
		BatchLimit: 100,
	}

	return &Graph{
		Config:       cfg,
		Logger:       logger,
		DB:           db,
		RedisClient:  redisClient,
		RedisConnOpt: redisOpt,
		Repo:         repo,
		Orchestrator: orch,
		Reconciler:   reconciler,
	}, nil
}

func registerProviders(reg *provider.Registry, cfg config.Config) {
	reg.Register(provider.NewSMTPSender(provider.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		TLSMode:  provider.ParseTLSMode(cfg.SMTPTLSMode),
	}))
	reg.Register(provider.NewHTTPEmailSender(provider.HTTPEmailConfig{
		BaseURL: cfg.HTTPEmailAPIURL,
		APIKey:  cfg.HTTPEmailAPIKey,
		From:    cfg.HTTPEmailFrom,
		Timeout: cfg.HTTPTimeout,
	}))
	reg.Register(provider.NewHTTPPushSender(provider.HTTPPushConfig{
		BaseURL: cfg.HTTPPushAPIURL,
		APIKey:  cfg.HTTPPushAPIKey,
		Timeout: cfg.HTTPTimeout,
	}))
}

// Close releases the graph's long-lived connections. Safe to call even if Build returned early.
func (g *Graph) Close() {
	if g.DB != nil {
		_ = g.DB.Close()
	}
	if g.RedisClient != nil {
		_ = g.RedisClient.Close()
	}
}
