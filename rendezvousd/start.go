package rendezvousd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/rendezvous/coordinator"
	"github.com/absmach/rendezvous/coordinator/api"
	"github.com/absmach/rendezvous/coordinator/middleware"
	"github.com/absmach/rendezvous/pkg/mqtt"
	"github.com/absmach/rendezvous/pkg/reduce"
	"github.com/absmach/rendezvous/pkg/storage"
	"github.com/absmach/supermq/pkg/jaeger"
	"github.com/absmach/supermq/pkg/prometheus"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const svcName = "coordinator"

type Config struct {
	LogLevel       string
	InstanceID     string
	BarrierTimeout time.Duration
	WarnInterval   time.Duration
	Reducer        string
	WasmPath       string
	MQTTAddress    string
	MQTTQoS        uint8
	MQTTTimeout    time.Duration
	ClientID       string
	ClientKey      string
	DomainID       string
	ChannelID      string
	Server         server.Config
	OTELURL        url.URL
	TraceRatio     float64
}

func StartCoordinator(ctx context.Context, cancel context.CancelFunc, cfg Config) error {
	g, ctx := errgroup.WithContext(ctx)

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := jaeger.NewProvider(ctx, svcName, cfg.OTELURL, "", cfg.TraceRatio)
		if err != nil {
			return fmt.Errorf("failed to initialize opentelemetry: %s", err.Error())
		}
		defer func() {
			if err := sdktp.Shutdown(ctx); err != nil {
				slog.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	reducer, err := newReducer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize reducer: %s", err.Error())
	}
	if wr, ok := reducer.(*reduce.WasmReducer); ok {
		defer func() {
			if err := wr.Close(ctx); err != nil {
				slog.Error("error closing wasm reducer", slog.Any("error", err))
			}
		}()
	}

	var pubsub mqtt.PubSub
	if cfg.MQTTAddress != "" {
		if cfg.ClientID == "" {
			cfg.ClientID = svcName + "-" + namegenerator.NewGenerator().Generate()
		}
		pubsub, err = mqtt.NewPubSub(cfg.MQTTAddress, cfg.MQTTQoS, cfg.ClientID, cfg.ClientID, cfg.ClientKey, cfg.DomainID, cfg.ChannelID, cfg.MQTTTimeout, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize mqtt pubsub: %s", err.Error())
		}
	} else {
		logger.Info("mqtt address not set, round events disabled")
	}

	baseTopic := "m/" + cfg.DomainID + "/c/" + cfg.ChannelID + "/messages"
	svc := coordinator.NewService(coordinator.Config{
		Timeout:      cfg.BarrierTimeout,
		WarnInterval: cfg.WarnInterval,
		Reducer:      reducer,
		BaseTopic:    baseTopic,
	}, storage.NewInMemoryStorage(), pubsub, logger)
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	hs := httpserver.NewServer(ctx, cancel, svcName, cfg.Server, api.MakeHandler(svc, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}

	return nil
}

func newReducer(ctx context.Context, cfg Config) (reduce.Reducer, error) {
	if cfg.Reducer != reduce.KindWasm {
		return reduce.New(cfg.Reducer)
	}

	if cfg.WasmPath == "" {
		return nil, errors.New("wasm reducer requires a module path")
	}
	binary, err := os.ReadFile(cfg.WasmPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read wasm reducer: %w", err)
	}

	return reduce.NewWasm(ctx, binary)
}
