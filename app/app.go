// Package app wires the EdenKit runtime together from a config.Config: the
// persistence backend, event bus, wallet, ledger, settlement pipeline and its
// queue worker, certificate authority, action dispatcher and workflow engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/AltairaLabs/EdenKit/actions"
	"github.com/AltairaLabs/EdenKit/certificate"
	"github.com/AltairaLabs/EdenKit/config"
	"github.com/AltairaLabs/EdenKit/events"
	"github.com/AltairaLabs/EdenKit/ledger"
	"github.com/AltairaLabs/EdenKit/logger"
	metrics "github.com/AltairaLabs/EdenKit/metrics/prometheus"
	"github.com/AltairaLabs/EdenKit/settlement"
	"github.com/AltairaLabs/EdenKit/statestore"
	"github.com/AltairaLabs/EdenKit/telemetry"
	"github.com/AltairaLabs/EdenKit/wallet"
	"github.com/AltairaLabs/EdenKit/workflow"
)

const redisPingTimeout = 5 * time.Second

// App holds the wired runtime.
type App struct {
	Config       *config.Config
	Store        statestore.Store
	Bus          *events.EventBus
	Wallet       *wallet.Service
	Ledger       *ledger.Store
	Queue        *settlement.Queue
	Worker       *settlement.Worker
	Settlement   *settlement.Pipeline
	Cashier      *settlement.Cashier
	Certificates *certificate.Registry
	Actions      *actions.Registry
	Dispatcher   *actions.Dispatcher
	Engine       *workflow.Engine

	redis    *redis.Client
	exporter *metrics.Exporter
	provider *sdktrace.TracerProvider
}

type options struct {
	sinks     []events.Sink
	directory settlement.Directory
	tracer    trace.TracerProvider
	now       func() time.Time
}

// Option customises New.
type Option func(*options)

// WithSink adds a synchronous sink that receives every event alongside the bus.
func WithSink(sink events.Sink) Option {
	return func(o *options) {
		if sink != nil {
			o.sinks = append(o.sinks, sink)
		}
	}
}

// WithDirectory replaces the provider-to-garden directory built from config.
func WithDirectory(d settlement.Directory) Option {
	return func(o *options) {
		o.directory = d
	}
}

// WithTracerProvider sets the provider for engine spans. It takes precedence
// over telemetry.otlp_endpoint.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracer = tp
	}
}

// WithClock sets the time source shared by every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New builds the runtime. A nil cfg uses config.Default.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	if err := logger.Configure(cfg.LoggingSpec()); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	a := &App{Config: cfg}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	a.Bus = events.NewEventBus()
	a.Bus.SubscribeAll(metrics.NewMetricsListener().Listener())
	sink := events.Multi(append([]events.Sink{a.Bus}, o.sinks...)...)
	em := events.NewEmitter(sink, "", "").WithClock(o.now)

	a.Wallet = wallet.NewService(
		wallet.WithStore(a.Store),
		wallet.WithEmitter(em),
		wallet.WithClock(o.now),
	)

	a.Queue = settlement.NewQueue(
		settlement.WithCapacity(cfg.Settlement.QueueSize),
		settlement.WithRateLimit(cfg.Settlement.ForwardRate, int(math.Ceil(cfg.Settlement.ForwardRate))),
	)

	a.Ledger = ledger.NewStore(
		ledger.WithPersistence(a.Store),
		ledger.WithForwarder(a.Queue),
		ledger.WithEmitter(em),
		ledger.WithClock(o.now),
		ledger.WithDebounce(cfg.Ledger.Debounce),
		ledger.WithForwardConcurrency(cfg.Settlement.ForwardWorkers),
		ledger.WithForwardRetries(cfg.Settlement.ForwardRetries, 0),
	)
	if err := a.Ledger.Load(ctx); err != nil {
		a.closeStore()
		return nil, err
	}

	dir := o.directory
	if dir == nil {
		dir = settlement.StaticDirectory(cfg.Settlement.Gardens)
	}
	a.Settlement = settlement.NewPipeline(a.Ledger, a.Wallet,
		settlement.WithDirectory(dir),
		settlement.WithFeePolicy(cfg.Fees),
		settlement.WithEmitter(em),
	)
	a.Cashier = settlement.NewCashier(cfg.Settlement.CashierID, cfg.Settlement.CashierName)
	a.Worker = settlement.NewWorker(a.Queue, a.Settlement,
		settlement.WithSweepInterval(cfg.Settlement.SweepInterval),
	)
	a.Worker.Start(ctx)

	if err := a.issueCertificate(ctx, em, o.now); err != nil {
		a.abort(ctx)
		return nil, err
	}

	a.Actions = actions.NewRegistry()
	if err := actions.RegisterAuthority(a.Actions, actions.AuthorityDeps{
		Ledger:     a.Ledger,
		Settlement: a.Settlement,
		Cashier:    a.Cashier,
	}); err != nil {
		a.abort(ctx)
		return nil, err
	}
	a.Dispatcher = actions.NewDispatcher(a.Actions)

	tp, err := a.tracerProvider(ctx, o.tracer)
	if err != nil {
		a.abort(ctx)
		return nil, err
	}

	engineOpts := []workflow.EngineOption{
		workflow.WithSink(sink),
		workflow.WithStore(a.Store),
		workflow.WithSubject(cfg.Authority.Subject),
		workflow.WithClock(o.now),
	}
	if tp != nil {
		engineOpts = append(engineOpts, workflow.WithTracerProvider(tp))
	}
	a.Engine = workflow.NewEngine(a.Dispatcher, a.Certificates, engineOpts...)

	a.startExporter()

	logger.Info("edenkit runtime ready",
		"store", cfg.Store.Driver,
		"subject", cfg.Authority.Subject,
		"actions", len(a.Actions.Tags()),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config.Store
	switch cfg.Driver {
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rs := statestore.NewRedisStore(client, statestore.WithPrefix(cfg.Redis.Prefix))
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			_ = client.Close()
			return fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		a.redis = client
		a.Store = rs
	default:
		a.Store = statestore.NewMemoryStore()
	}
	return nil
}

func (a *App) issueCertificate(ctx context.Context, em *events.Emitter, now func() time.Time) error {
	cfg := a.Config.Authority
	auth, err := certificate.NewJWTAuthority(cfg.Issuer, nil, certificate.WithAuthorityClock(now))
	if err != nil {
		return err
	}
	a.Certificates = certificate.NewRegistry(auth,
		certificate.WithClock(now),
		certificate.WithEmitter(em),
	)
	_, err = a.Certificates.Issue(ctx, certificate.IssueRequest{
		Subject:      cfg.Subject,
		Capabilities: cfg.Capabilities,
		TTL:          cfg.TTL,
	})
	if err != nil {
		return fmt.Errorf("issue %s certificate: %w", cfg.Subject, err)
	}
	return nil
}

func (a *App) tracerProvider(ctx context.Context, given trace.TracerProvider) (trace.TracerProvider, error) {
	if given != nil {
		return given, nil
	}
	exp := a.Config.TelemetryExport()
	if exp.Endpoint == "" {
		return nil, nil
	}
	tp, err := telemetry.NewTracerProvider(ctx, exp)
	if err != nil {
		return nil, fmt.Errorf("create tracer provider: %w", err)
	}
	telemetry.SetupPropagation()
	a.provider = tp
	return tp, nil
}

func (a *App) startExporter() {
	if a.Config.Metrics.Addr == "" {
		return
	}
	a.exporter = metrics.NewExporter(a.Config.Metrics.Addr)
	go func() {
		if err := a.exporter.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics exporter stopped", "addr", a.Config.Metrics.Addr, "error", err)
		}
	}()
}

// abort stops the worker and releases the store after a failed New.
func (a *App) abort(ctx context.Context) {
	_ = a.Worker.Stop(ctx)
	a.closeStore()
}

func (a *App) closeStore() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// Close flushes the ledger, reconciles what is still queued, drains event
// delivery and releases external resources.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.exporter != nil {
		errs = append(errs, a.exporter.Shutdown(ctx))
	}
	errs = append(errs, a.Ledger.Close(ctx))
	errs = append(errs, a.Worker.Stop(ctx))
	a.Bus.Wait()
	if a.provider != nil {
		errs = append(errs, a.provider.Shutdown(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
