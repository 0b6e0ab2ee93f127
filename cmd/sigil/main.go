package main

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/layer-3/sigil/adapters/audit"
	"github.com/layer-3/sigil/adapters/events"
	"github.com/layer-3/sigil/adapters/ratelimit"
	"github.com/layer-3/sigil/adapters/store"
	"github.com/layer-3/sigil/adapters/tokenizer"
	"github.com/layer-3/sigil/dpop"
	"github.com/layer-3/sigil/internal/config"
	"github.com/layer-3/sigil/internal/eth"
	sigillog "github.com/layer-3/sigil/internal/log"
	"github.com/layer-3/sigil/metrics"
	"github.com/layer-3/sigil/risk"
	"github.com/layer-3/sigil/service"
	transport "github.com/layer-3/sigil/transport/http"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := sigillog.New(cfg.LogLevel, cfg.LogPretty)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("sigil exited")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	signer, err := buildSigner(cfg)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	deps := service.Deps{
		Tokenizer: tokenizer.NewJWTTokenizer(signer, cfg.Issuer),
		Verifier:  eth.NewVerifier(0),
		Metrics:   m,
		Log:       logger,
	}

	lockout := ratelimit.LockoutPolicy{
		Threshold: cfg.LockoutThreshold,
		Window:    cfg.LockoutWindow,
		Cooldown:  cfg.LockoutCooldown,
	}
	riskCfg := risk.DefaultConfig()
	riskCfg.StepUpThreshold = cfg.RiskStepUpThreshold
	riskCfg.DenyThreshold = cfg.RiskDenyThreshold

	var sweepTasks []service.SweepTask

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}

		deps.Challenges = store.NewRedisChallengeStore(client)
		deps.Sessions = store.NewRedisSessionStore(client)
		deps.StepUps = store.NewRedisStepUpStore(client)
		deps.Revocations = store.NewRedisRevocationCache(client)
		deps.Limiter = ratelimit.NewRedisLimiter(client, ratelimit.DefaultWindowLimits())
		deps.Failures = ratelimit.NewRedisFailureTracker(client, lockout)
		deps.DPoP = dpop.NewValidator(store.NewRedisReplayCache(client), dpop.ValidatorConfig{FreshnessWindow: cfg.DPoPFreshness})
		deps.Scorer = risk.NewScorer(risk.NewRedisHistory(client), riskCfg)

		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, watermillLogger{logger})
		if err != nil {
			return fmt.Errorf("create publisher: %w", err)
		}
		defer publisher.Close()
		deps.Events = events.NewWatermillPublisher(publisher)
		deps.Audit = audit.MultiSink{
			audit.NewLogSink(logger),
			audit.NewStreamSink(publisher, logger),
		}

		logger.Info().Msg("using redis backends")
	} else {
		challenges := store.NewMemoryChallengeStore()
		sessions := store.NewMemorySessionStore()
		revocations := store.NewMemoryRevocationCache()
		replays := dpop.NewMemoryReplayCache(0)
		limiter := ratelimit.NewMemoryLimiter(ratelimit.DefaultLimits())
		failures := ratelimit.NewMemoryFailureTracker(lockout)
		history := risk.NewMemoryHistory(0)

		deps.Challenges = challenges
		deps.Sessions = sessions
		deps.StepUps = store.NewMemoryStepUpStore()
		deps.Revocations = revocations
		deps.Limiter = limiter
		deps.Failures = failures
		deps.DPoP = dpop.NewValidator(replays, dpop.ValidatorConfig{FreshnessWindow: cfg.DPoPFreshness})
		deps.Scorer = risk.NewScorer(history, riskCfg)
		deps.Audit = audit.NewLogSink(logger)

		sweepTasks = append(sweepTasks,
			service.SweepTask{Name: "revocations", Run: func(_ context.Context, now time.Time) (int, error) {
				return revocations.Sweep(now), nil
			}},
			service.SweepTask{Name: "dpop_replays", Run: func(_ context.Context, now time.Time) (int, error) {
				return replays.Sweep(now), nil
			}},
			service.SweepTask{Name: "rate_buckets", Run: func(_ context.Context, now time.Time) (int, error) {
				return limiter.Sweep(now, 30*time.Minute), nil
			}},
			service.SweepTask{Name: "lockouts", Run: func(_ context.Context, now time.Time) (int, error) {
				return failures.Sweep(now), nil
			}},
			service.SweepTask{Name: "risk_history", Run: func(_ context.Context, now time.Time) (int, error) {
				return history.Sweep(now), nil
			}},
		)
		logger.Info().Msg("using in-memory backends")
	}
	deps.Gate = risk.NewGate(riskCfg)

	// Expired challenges and sessions are pruned on both backends; Redis
	// TTLs already cover the caches there.
	sweepTasks = append(sweepTasks,
		service.SweepTask{Name: "challenges", Run: deps.Challenges.DeleteExpired},
		service.SweepTask{Name: "sessions", Run: deps.Sessions.DeleteExpired},
	)

	svc := service.NewAuthService(deps, service.Config{
		Issuer:        cfg.Issuer,
		ChallengeTTL:  cfg.ChallengeTTL,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		StepUpTTL:     cfg.StepUpTTL,
		RequireDPoP:   cfg.DPoPRequired,
		BindingPolicy: service.BindingPolicy(cfg.BindingPolicy),
	})

	sweeper := service.NewSweeper(cfg.SweepInterval, logger, sweepTasks...)
	go sweeper.Run(ctx)

	router := transport.NewRouter(transport.RouterConfig{
		Service:  svc,
		Log:      logger,
		Registry: registry,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildSigner(cfg *config.Config) (tokenizer.Signer, error) {
	switch cfg.SigningScheme {
	case "hs256":
		return tokenizer.NewHS256Signer([]byte(cfg.SigningSecret)), nil
	case "es256":
		raw, err := os.ReadFile(cfg.SigningKey)
		if err != nil {
			return tokenizer.Signer{}, fmt.Errorf("read signing key: %w", err)
		}
		block, _ := pem.Decode(raw)
		if block == nil {
			return tokenizer.Signer{}, fmt.Errorf("signing key %s is not PEM", cfg.SigningKey)
		}
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return tokenizer.Signer{}, fmt.Errorf("parse signing key: %w", err)
		}
		return tokenizer.NewES256Signer(key), nil
	default:
		return tokenizer.Signer{}, fmt.Errorf("unknown signing scheme %q", cfg.SigningScheme)
	}
}

// watermillLogger adapts zerolog to watermill's logger interface.
type watermillLogger struct {
	log zerolog.Logger
}

func (l watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.log.Error().Err(err).Fields(map[string]any(fields)).Msg(msg)
}

func (l watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.log.Info().Fields(map[string]any(fields)).Msg(msg)
}

func (l watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.log.Debug().Fields(map[string]any(fields)).Msg(msg)
}

func (l watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.log.Trace().Fields(map[string]any(fields)).Msg(msg)
}

func (l watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillLogger{log: l.log.With().Fields(map[string]any(fields)).Logger()}
}
