package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	apiPkg "github.com/h1v3-io/jirabot/internal/api"
	"github.com/h1v3-io/jirabot/internal/config"
	"github.com/h1v3-io/jirabot/internal/connector"
	slackconn "github.com/h1v3-io/jirabot/internal/connector/slack"
	"github.com/h1v3-io/jirabot/internal/dateresolve"
	"github.com/h1v3-io/jirabot/internal/dedup"
	"github.com/h1v3-io/jirabot/internal/dialogue"
	"github.com/h1v3-io/jirabot/internal/dispatch"
	"github.com/h1v3-io/jirabot/internal/jira"
	"github.com/h1v3-io/jirabot/internal/keyed"
	"github.com/h1v3-io/jirabot/internal/ledger"
	"github.com/h1v3-io/jirabot/internal/logbuf"
	"github.com/h1v3-io/jirabot/internal/metrics"
	"github.com/h1v3-io/jirabot/internal/sweeper"
	"github.com/h1v3-io/jirabot/pkg/protocol"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (.json, .yaml)")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Config comes first so LOG_LEVEL can shape the logger.
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
		if err == nil {
			err = cfg.Validate()
		}
	}

	logLevel := slog.LevelInfo
	if cfg != nil && cfg.LogLevel != "" {
		logLevel = logbuf.ParseLevel(cfg.LogLevel)
	}
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))
	slog.SetDefault(logger)

	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Info("jirabotd starting",
		"project", cfg.Jira.ProjectKey,
		"resolver", cfg.Dates.Resolver,
		"socket_mode", cfg.Slack.AppToken != "",
	)

	// 1. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 2. Ledger
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data dir", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	dbPath := filepath.Join(cfg.DataDir, "ledger.db")
	store, err := ledger.NewSQLiteStore(dbPath)
	if err != nil {
		logger.Error("failed to open ledger", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// 3. Collaborators
	dates := buildResolver(cfg.Dates, logger)
	tracker := jira.New(cfg.Jira.BaseURL, cfg.Jira.Email, cfg.Jira.APIToken)
	sender := slackconn.NewSender(cfg.Slack.BotToken, logger.With("component", "slack"))

	// 4. Dialogue + dispatch
	sessions := keyed.New[dialogue.Session]()
	machine := dialogue.New(dialogue.Config{
		ProjectKey: cfg.Jira.ProjectKey,
		IssueType:  cfg.Jira.IssueType,
	}, sessions, dates, tracker, sender)
	machine.Recorder = store
	machine.Metrics = m
	machine.Logger = logger.With("component", "dialogue")
	metrics.RegisterSessionGauge(reg, machine.ActiveSessions)

	dispatcher := dispatch.New(dedup.New(), machine, m, logger.With("component", "dispatch"))
	webhook := dispatch.NewWebhook(dispatcher, cfg.Slack.SigningSecret, logger.With("component", "webhook"))
	if cfg.Slack.SigningSecret == "" {
		logger.Warn("SLACK_SIGNING_SECRET not set, webhook requests are not verified")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Optional Socket Mode receiver feeding the same dispatcher
	var receivers []connector.Receiver
	if cfg.Slack.AppToken != "" {
		recv, err := slackconn.NewSocketReceiver(slackconn.SocketConfig{
			BotToken: cfg.Slack.BotToken,
			AppToken: cfg.Slack.AppToken,
		}, func(ctx context.Context, ev protocol.InboundEvent) {
			dispatcher.HandleEvent(ctx, ev)
		}, logger.With("component", "socketmode"))
		if err != nil {
			logger.Error("failed to init socket mode", "error", err)
			os.Exit(1)
		}
		receivers = append(receivers, recv)
	}
	for _, r := range receivers {
		go safeGo(logger, r.Name(), func() {
			if err := r.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("receiver stopped", "receiver", r.Name(), "error", err)
			}
		})
		logger.Info("receiver started", "receiver", r.Name())
	}

	// 6. Idle session sweeper
	if ttl := cfg.Sessions.IdleTTL(); ttl > 0 {
		sw := sweeper.New(machine, ttl, logger.With("component", "sweeper"))
		if err := sw.Schedule("@every 1m"); err != nil {
			logger.Error("failed to schedule sweeper", "error", err)
			os.Exit(1)
		}
		go safeGo(logger, "sweeper", func() { sw.Start(ctx) })
	}

	// 7. HTTP server
	srv := apiPkg.NewServer(apiPkg.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, apiPkg.Deps{
		Events:   webhook,
		Sessions: machine,
		Ledger:   store,
		Logs:     logBuf,
		Metrics:  reg,
	}, logger.With("component", "api"))

	srvDone := make(chan struct{})
	go safeGo(logger, "http-server", func() {
		defer close(srvDone)
		if err := srv.Start(ctx); err != nil {
			logger.Error("http server failed", "error", err)
			cancel()
		}
	})

	// 8. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}
	cancel()
	for _, r := range receivers {
		if err := r.Stop(); err != nil {
			logger.Warn("receiver stop failed", "receiver", r.Name(), "error", err)
		}
	}
	// Shutdown drains in-flight webhook requests, which carry whole dialogue turns.
	select {
	case <-srvDone:
	case <-time.After(10 * time.Second):
		logger.Warn("http server did not stop in time")
	}
	logger.Info("jirabotd stopped")
}

// buildResolver assembles the due-date resolver for the configured mode.
func buildResolver(cfg config.DatesConfig, logger *slog.Logger) dateresolve.Resolver {
	parser := dateresolve.NewParser()
	var llm dateresolve.Resolver
	if cfg.OpenAIKey != "" {
		opts := []dateresolve.LLMOption{dateresolve.WithModel(cfg.Model)}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, dateresolve.WithBaseURL(cfg.OpenAIBaseURL))
		}
		llm = dateresolve.NewLLM(cfg.OpenAIKey, opts...)
	}

	var inner dateresolve.Resolver
	switch cfg.Resolver {
	case config.ResolverParser:
		inner = parser
	case config.ResolverLLM:
		inner = llm
	default:
		if llm != nil {
			inner = dateresolve.Chain{parser, llm}
		} else {
			inner = parser
		}
	}
	logger.Info("date resolver ready", "resolver", inner.Name(), "timeout", cfg.Timeout())
	return dateresolve.Bounded{Inner: inner, Timeout: cfg.Timeout()}
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
