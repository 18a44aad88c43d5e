package cli

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/acryldata/datahub-monitors/catalog"
	"github.com/acryldata/datahub-monitors/connection"
	"github.com/acryldata/datahub-monitors/core"
	"github.com/acryldata/datahub-monitors/metrics"
	"github.com/acryldata/datahub-monitors/sources"
	"github.com/acryldata/datahub-monitors/web"
)

// DaemonCommand runs the monitor service: reconcile monitors from the
// catalog, evaluate their assertions on schedule, and write results back.
type DaemonCommand struct {
	GMSProtocol  string `long:"gms-protocol" env:"DATAHUB_GMS_PROTOCOL" description:"catalog protocol"`
	GMSHost      string `long:"gms-host" env:"DATAHUB_GMS_HOST" description:"catalog host"`
	GMSPort      int    `long:"gms-port" env:"DATAHUB_GMS_PORT" description:"catalog port"`
	ClientID     string `long:"system-client-id" env:"DATAHUB_SYSTEM_CLIENT_ID" description:"system client id"`
	ClientSecret string `long:"system-client-secret" env:"DATAHUB_SYSTEM_CLIENT_SECRET" description:"system client secret"`

	RefreshInterval   time.Duration `long:"refresh-interval" env:"MONITORS_REFRESH_INTERVAL" description:"monitor reconciliation interval"`
	EvaluationTimeout time.Duration `long:"evaluation-timeout" env:"MONITORS_EVALUATION_TIMEOUT" description:"per-evaluation deadline"`
	Workers           int           `long:"workers" env:"MONITORS_WORKERS" description:"concurrent evaluation workers"`
	QueueSize         int           `long:"queue-size" env:"MONITORS_QUEUE_SIZE" description:"pending evaluation queue size"`
	DryRun            bool          `long:"dry-run" env:"MONITORS_DRY_RUN" description:"evaluate without writing results back"`

	LogLevel    string `long:"log-level" env:"MONITORS_LOG_LEVEL"`
	Debug       bool   `long:"debug" env:"DATAHUB_DEBUG"`
	EnableWeb   bool   `long:"enable-web" env:"MONITORS_ENABLE_WEB"`
	WebAddr     string `long:"web-address" env:"MONITORS_WEB_ADDRESS"`
	EnablePprof bool   `long:"enable-pprof" env:"MONITORS_ENABLE_PPROF"`
	PprofAddr   string `long:"pprof-address" env:"MONITORS_PPROF_ADDRESS"`

	Logger *slog.Logger

	config      *Config
	manager     *core.MonitorManager
	scheduler   *core.AssertionScheduler
	webServer   *web.Server
	pprofServer *http.Server
}

// Execute runs the daemon until a termination signal arrives.
func (c *DaemonCommand) Execute(_ []string) error {
	if err := c.boot(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c.start(ctx)
	<-ctx.Done()
	return c.shutdown()
}

func (c *DaemonCommand) boot() error {
	if c.Debug && c.LogLevel == "" {
		c.LogLevel = "debug"
	}
	ApplyLogLevel(c.LogLevel)
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := NewConfig(c.applyOptions)
	if err != nil {
		return err
	}
	c.config = cfg

	client := catalog.NewClient(catalog.ClientConfig{
		ServerURL:    cfg.ServerURL(),
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}, logger)

	clock := core.NewRealClock()
	retry := core.NewRetryExecutor(core.DefaultRetryPolicy(), clock, logger)

	// Catalog-managed secrets first, process environment as fallback.
	secretStores := []connection.SecretStore{client, connection.EnvSecretStore{}}
	connections := connection.NewProvider(client, secretStores, logger)
	sourceProvider := sources.NewProvider(retry, logger)

	recorder := metrics.NewRecorder()
	evaluator := core.NewFreshnessEvaluator(connections, sourceProvider, clock, logger)
	resultHandler := catalog.NewRunEventHandler(client, clock, logger)

	var handlers []core.ResultHandler
	if cfg.DryRun {
		logger.Warn("dry run enabled, results will not be written back")
	} else {
		handlers = append(handlers, resultHandler)
	}

	engine := core.NewAssertionEngine([]core.Evaluator{evaluator}, handlers, recorder, logger)
	c.scheduler = core.NewAssertionScheduler(engine, recorder, logger, core.SchedulerConfig{
		EvaluationTimeout: cfg.EvaluationTimeout,
		Workers:           cfg.Workers,
		QueueSize:         cfg.QueueSize,
	})

	fetcher := catalog.NewMonitorFetcher(client, retry, logger)
	c.manager = core.NewMonitorManager(fetcher, c.scheduler, clock, recorder, logger, cfg.RefreshInterval)

	if cfg.EnableWeb {
		health := web.NewHealthChecker(c.scheduler, version())
		c.webServer = web.NewServer(cfg.WebAddr, health, recorder.Handler(), logger)
	}
	if cfg.EnablePprof {
		c.pprofServer = &http.Server{
			Addr:              cfg.PprofAddr,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
	}

	c.Logger = logger
	return nil
}

func (c *DaemonCommand) start(ctx context.Context) {
	c.manager.Start(ctx)

	if c.webServer != nil {
		c.webServer.Start()
	}
	if c.pprofServer != nil {
		c.Logger.Info("starting pprof server", "addr", c.pprofServer.Addr)
		go func() {
			if err := c.pprofServer.ListenAndServe(); err != http.ErrServerClosed {
				c.Logger.Error("pprof server failed", "error", err)
			}
		}()
	}
}

func (c *DaemonCommand) shutdown() error {
	c.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), core.DefaultStopTimeout)
	defer cancel()

	if c.webServer != nil {
		if err := c.webServer.Shutdown(shutdownCtx); err != nil {
			c.Logger.Error("web server shutdown failed", "error", err)
		}
	}
	if c.pprofServer != nil {
		_ = c.pprofServer.Shutdown(shutdownCtx)
	}
	return c.manager.Stop()
}

// applyOptions copies explicitly-set flags over the config defaults.
func (c *DaemonCommand) applyOptions(cfg *Config) {
	if c.GMSProtocol != "" {
		cfg.GMSProtocol = c.GMSProtocol
	}
	if c.GMSHost != "" {
		cfg.GMSHost = c.GMSHost
	}
	if c.GMSPort != 0 {
		cfg.GMSPort = c.GMSPort
	}
	if c.ClientID != "" {
		cfg.ClientID = c.ClientID
	}
	if c.ClientSecret != "" {
		cfg.ClientSecret = c.ClientSecret
	}
	if c.RefreshInterval != 0 {
		cfg.RefreshInterval = c.RefreshInterval
	}
	if c.EvaluationTimeout != 0 {
		cfg.EvaluationTimeout = c.EvaluationTimeout
	}
	if c.Workers != 0 {
		cfg.Workers = c.Workers
	}
	if c.QueueSize != 0 {
		cfg.QueueSize = c.QueueSize
	}
	cfg.DryRun = c.DryRun
	cfg.EnableWeb = c.EnableWeb
	if c.WebAddr != "" {
		cfg.WebAddr = c.WebAddr
	}
	cfg.EnablePprof = c.EnablePprof
	if c.PprofAddr != "" {
		cfg.PprofAddr = c.PprofAddr
	}
}

// Config returns the active configuration used by the daemon.
func (c *DaemonCommand) Config() *Config {
	return c.config
}
