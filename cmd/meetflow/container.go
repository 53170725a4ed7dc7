package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"meetflow/internal/attendee"
	"meetflow/internal/calendar"
	"meetflow/internal/config"
	"meetflow/internal/llm"
	"meetflow/internal/logging"
	"meetflow/internal/mail"
	"meetflow/internal/observability"
	"meetflow/internal/orchestrator"
	"meetflow/internal/progress"
	"meetflow/internal/server"
)

// container holds the wired application graph for one command.
type container struct {
	cfg          config.Config
	logger       logging.Logger
	registry     *prometheus.Registry
	generator    llm.Generator
	store        calendar.Store
	broadcaster  *progress.Broadcaster
	orchestrator *orchestrator.Orchestrator
	health       *server.HealthChecker
	hours        calendar.WorkingHours

	closers []func(context.Context) error
}

func buildContainer(ctx context.Context, cfg config.Config) (_ *container, err error) {
	logging.Configure(cfg.Logging)
	logger := logging.NewComponentLogger("meetflow")
	c := &container{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	c.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
		}
	}()

	hours, err := cfg.WorkingHours()
	if err != nil {
		return nil, err
	}
	c.hours = hours

	tracer, err := observability.NewTracerProvider(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	c.closers = append(c.closers, tracer.Shutdown)

	llmMetrics, err := observability.NewMetricsCollector(observability.MetricsConfig{Enabled: true, Registerer: c.registry})
	if err != nil {
		return nil, fmt.Errorf("init llm metrics: %w", err)
	}
	c.closers = append(c.closers, llmMetrics.Shutdown)

	gen, err := llm.New(llm.ProviderConfig{
		Provider:    cfg.LLM.Provider,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		TopP:        cfg.LLM.TopP,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  cfg.LLM.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("init llm: %w", err)
	}
	c.generator = llm.NewInstrumented(gen, llmMetrics)

	switch cfg.Calendar.Backend {
	case "sqlite":
		store, err := calendar.OpenSQLiteStore(ctx, cfg.Calendar.SQLitePath)
		if err != nil {
			return nil, err
		}
		c.store = store
		c.closers = append(c.closers, func(context.Context) error { return store.Close() })
	default:
		c.store = calendar.NewMemoryStore()
	}

	dir, fromFile, err := attendee.LoadDirectory(cfg.Attendees.DirectoryPath)
	if err != nil {
		return nil, err
	}
	if !fromFile {
		logger.Debug("Attendee directory %q not found, using built-in contacts", cfg.Attendees.DirectoryPath)
	}
	resolverOpts := []attendee.Option{
		attendee.WithThreshold(cfg.Attendees.FuzzyThreshold),
		attendee.WithLogger(logging.NewComponentLogger("attendee")),
	}
	if cfg.Attendees.DefaultDomain != "" {
		resolverOpts = append(resolverOpts, attendee.WithDefaultDomain(cfg.Attendees.DefaultDomain))
	}
	resolver := attendee.NewResolver(dir, resolverOpts...)

	var mailer mail.Mailer
	switch {
	case cfg.Mail.Enabled:
		smtpMailer, err := mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
		if err != nil {
			return nil, err
		}
		mailer = smtpMailer
	case len(cfg.Mail.Recipients) > 0:
		mailer = mail.LogMailer{Logger: logging.NewComponentLogger("mail")}
	}

	c.broadcaster = progress.NewBroadcaster(
		progress.WithQueueCapacity(cfg.Progress.QueueCapacity),
		progress.WithMetrics(progress.MustNewMetrics(c.registry)),
		progress.WithLogger(logging.NewComponentLogger("progress")),
	)
	c.closers = append(c.closers, func(context.Context) error {
		c.broadcaster.Close()
		return nil
	})

	orch, err := orchestrator.New(orchestrator.Dependencies{
		Generator:   c.generator,
		Calendar:    c.store,
		Resolver:    resolver,
		Mailer:      mailer,
		Broadcaster: c.broadcaster,
		Metrics:     orchestrator.MustNewMetrics(c.registry),
		Tracer:      tracer,
		Logger:      logging.NewComponentLogger("orchestrator"),
		Config: orchestrator.Config{
			StageTimeout:      cfg.Pipeline.StageTimeout,
			ContextDaysBack:   cfg.Pipeline.ContextDaysBack,
			ContextDaysAhead:  cfg.Pipeline.ContextDaysAhead,
			ContextMaxEvents:  cfg.Pipeline.ContextMaxEvents,
			RelatedLimit:      cfg.Pipeline.RelatedLimit,
			SlotSearchDays:    cfg.Pipeline.SlotSearchDays,
			Hours:             hours,
			SummaryRecipients: cfg.Mail.Recipients,
			SummarySubject:    cfg.Mail.Subject,
		},
	})
	if err != nil {
		return nil, err
	}
	c.orchestrator = orch

	c.health = server.NewHealthChecker()
	c.health.RegisterProbe(server.CalendarProbe{Store: c.store})
	c.health.RegisterProbe(server.ModelProbe{Model: c.generator.Model()})
	c.health.RegisterProbe(server.BroadcasterProbe{Broadcaster: c.broadcaster})
	return c, nil
}

// Close releases resources in reverse order of acquisition.
func (c *container) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
