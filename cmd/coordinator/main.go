package main

import (
	"context"
	"errors"
	"fmt"
	"log"
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
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName           = "coordinator"
	defHTTPPort       = "9090"
	envPrefixHTTP     = "RENDEZVOUS_HTTP_"
	envPrefixRegistry = "RENDEZVOUS_REGISTRY_"
	pathEnv           = ".env"
)

type envConfig struct {
	LogLevel         string        `env:"RENDEZVOUS_LOG_LEVEL"             envDefault:"info"`
	InstanceID       string        `env:"RENDEZVOUS_INSTANCE_ID"`
	BarrierTimeout   time.Duration `env:"RENDEZVOUS_BARRIER_TIMEOUT"       envDefault:"30m"`
	WarnInterval     time.Duration `env:"RENDEZVOUS_BARRIER_WARN_INTERVAL" envDefault:"1m"`
	Reducer          string        `env:"RENDEZVOUS_REDUCER"               envDefault:"concat"`
	ReducerWasmPath  string        `env:"RENDEZVOUS_REDUCER_WASM_PATH"`
	ReducerWasmImage string        `env:"RENDEZVOUS_REDUCER_WASM_IMAGE"`
	MQTTAddress      string        `env:"RENDEZVOUS_MQTT_ADDRESS"          envDefault:"tcp://localhost:1883"`
	MQTTQoS          uint8         `env:"RENDEZVOUS_MQTT_QOS"              envDefault:"2"`
	MQTTTimeout      time.Duration `env:"RENDEZVOUS_MQTT_TIMEOUT"          envDefault:"30s"`
	ClientID         string        `env:"RENDEZVOUS_CLIENT_ID"`
	ClientKey        string        `env:"RENDEZVOUS_CLIENT_KEY"`
	DomainID         string        `env:"RENDEZVOUS_DOMAIN_ID"`
	ChannelID        string        `env:"RENDEZVOUS_CHANNEL_ID"`
	OTELURL          url.URL       `env:"RENDEZVOUS_OTEL_URL"`
	TraceRatio       float64       `env:"RENDEZVOUS_TRACE_RATIO"           envDefault:"0"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = svcName + "-" + namegenerator.NewGenerator().Generate()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
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
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(ctx); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	reducer, err := newReducer(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize reducer", slog.String("error", err.Error()))

		return
	}
	if wr, ok := reducer.(*reduce.WasmReducer); ok {
		defer func() {
			if err := wr.Close(ctx); err != nil {
				logger.Error("error closing wasm reducer", slog.Any("error", err))
			}
		}()
	}

	var pubsub mqtt.PubSub
	if cfg.MQTTAddress != "" {
		pubsub, err = mqtt.NewPubSub(cfg.MQTTAddress, cfg.MQTTQoS, cfg.ClientID, cfg.ClientID, cfg.ClientKey, cfg.DomainID, cfg.ChannelID, cfg.MQTTTimeout, logger)
		if err != nil {
			logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

			return
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

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}

func newReducer(ctx context.Context, cfg envConfig) (reduce.Reducer, error) {
	if cfg.Reducer != reduce.KindWasm {
		return reduce.New(cfg.Reducer)
	}

	var binary []byte
	switch {
	case cfg.ReducerWasmPath != "":
		b, err := os.ReadFile(cfg.ReducerWasmPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read wasm reducer: %w", err)
		}
		binary = b
	case cfg.ReducerWasmImage != "":
		regCfg := reduce.RegistryConfig{}
		if err := env.ParseWithOptions(&regCfg, env.Options{Prefix: envPrefixRegistry}); err != nil {
			return nil, fmt.Errorf("failed to load registry configuration: %w", err)
		}
		if err := regCfg.Validate(); err != nil {
			return nil, err
		}
		b, err := regCfg.FetchModule(ctx, cfg.ReducerWasmImage)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch wasm reducer: %w", err)
		}
		binary = b
	default:
		return nil, errors.New("wasm reducer requires RENDEZVOUS_REDUCER_WASM_PATH or RENDEZVOUS_REDUCER_WASM_IMAGE")
	}

	return reduce.NewWasm(ctx, binary)
}
