package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"schedule-planner/api"
	"schedule-planner/config"
	"schedule-planner/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	configPath := flag.StringP("config", "c", "", "path to a TOML config file")
	addr := flag.String("addr", "", "listen address, overrides the config file")
	initConfig := flag.Bool("init-config", false, "write a default config file to --config and exit")
	flag.Parse()

	if *initConfig {
		path := *configPath
		if path == "" {
			path = config.DefaultConfigFileName
		}
		if err := config.WriteDefault(path); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		log.Infof("wrote default config to %s", path)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	logger := log.New()
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Errorf("shutdown tracer provider: %v", err)
		}
	}()

	backend, err := openBackend(cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if c, ok := backend.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				log.Errorf("close storage: %v", err)
			}
		}()
	}

	var store api.Storage = backend
	var deduper api.Deduper
	if cfg.Redis.ConnectionString != "" {
		rc := redis.NewClient(storage.RedisOptions(cfg.Redis.ConnectionString))
		defer rc.Close()
		store = storage.NewCache(backend, rc, time.Duration(cfg.Redis.CacheTTL))
		deduper = api.NewRedisDeduper(rc, time.Duration(cfg.Redis.DeduperTTL))
	} else {
		log.Warn("no redis configured; caching and idempotency tracking disabled")
	}

	auth, err := newAuth(cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	pubCfg := api.DefaultPublisherConfig()
	pubCfg.Workers = cfg.Publisher.Workers
	pubCfg.Buffer = cfg.Publisher.Buffer
	pubCfg.Timeout = time.Duration(cfg.Publisher.Timeout)
	publisher := api.NewPublisher(backend, pubCfg, logger)
	defer publisher.Close()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	e.Use(api.RequestLogger(logger))
	e.Use(api.GzipRequestMiddleware())
	api.Register(e, store, auth, deduper, publisher, logger)
	if cfg.Debug {
		pprof.Register(e)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.WithField("addr", cfg.ListenAddr).WithField("driver", cfg.Storage.Driver).Info("planner api starting")
	if err := serve(ctx, e, cfg.ListenAddr, 10*time.Second); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// serve runs e on addr until ctx is done or the listener fails. On
// cancellation the server gets grace to drain in-flight requests.
func serve(ctx context.Context, e *echo.Echo, addr string, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- e.Start(addr) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func openBackend(cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Driver {
	case config.DriverAzure:
		return storage.NewTables(cfg.ConnectionString, storage.TableNames{
			Tasks:    cfg.TasksTable,
			Users:    cfg.UsersTable,
			Settings: cfg.SettingsTable,
			Events:   cfg.EventsQueue,
		})
	case config.DriverSQLite:
		return storage.OpenSQLite(cfg.SQLitePath)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

func newAuth(cfg config.AuthConfig) (*api.Auth, error) {
	var secret []byte
	if cfg.Secret != "" {
		secret = []byte(cfg.Secret)
	}
	if cfg.Auth0Domain == "" {
		a := api.NewAuth(nil, "", "", secret)
		a.TokenTTL = time.Duration(cfg.TokenTTL)
		return a, nil
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	a := api.NewAuth(jwks, cfg.Auth0Audience, "https://"+cfg.Auth0Domain+"/", secret)
	a.TokenTTL = time.Duration(cfg.TokenTTL)
	return a, nil
}
