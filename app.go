package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/chative-commerce/agent/agents/orchestrator"
	"github.com/tanpawarit/chative-commerce/agent/agents/specialist"
	"github.com/tanpawarit/chative-commerce/agent/api"
	"github.com/tanpawarit/chative-commerce/agent/catalog"
	llmx "github.com/tanpawarit/chative-commerce/agent/llm"
	promptx "github.com/tanpawarit/chative-commerce/agent/prompt"
	"github.com/tanpawarit/chative-commerce/agent/response"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
	"github.com/tanpawarit/chative-commerce/agent/tool"
	"github.com/tanpawarit/chative-commerce/agent/turnlock"
	configx "github.com/tanpawarit/chative-commerce/pkg/config"
	openrouterx "github.com/tanpawarit/chative-commerce/pkg/openrouter"
	qstashx "github.com/tanpawarit/chative-commerce/pkg/qstash"
)

type StoreConfig struct {
	Backend      string        `envconfig:"BACKEND" default:"memory"`
	KeyPrefix    string        `envconfig:"KEY_PREFIX" split_words:"true"`
	TTL          time.Duration `envconfig:"TTL" default:"168h"`
	HistoryLimit int           `envconfig:"HISTORY_LIMIT" split_words:"true" default:"200"`
}

type QStashConfig struct {
	Enabled bool `envconfig:"ENABLED" default:"false"`
}

type app struct {
	orchestrator *orchestrator.Orchestrator
	closers      []io.Closer
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("close resource failed")
		}
	}
}

func buildApp(ctx context.Context) (*app, error) {
	a := &app{}

	cat, err := loadCatalog()
	if err != nil {
		return nil, err
	}

	orchCfg, err := configx.New[orchestrator.Config]("ORCHESTRATOR")
	if err != nil {
		return nil, fmt.Errorf("load orchestrator config: %w", err)
	}

	store, locker, err := a.buildStore(ctx, orchCfg.LockWait)
	if err != nil {
		return nil, err
	}

	gateway, err := tool.NewGateway(store, cat)
	if err != nil {
		return nil, err
	}

	llmCfg, err := configx.New[llmx.Config]("LLM")
	if err != nil {
		return nil, fmt.Errorf("load llm config: %w", err)
	}
	registry, err := specialist.NewRegistry(ctx, *llmCfg, orchCfg.HistoryWindow)
	if err != nil {
		return nil, err
	}

	completer, err := openrouterx.NewCompleter(llmCfg.OpenRouterFor(llmx.RoleHumanizer))
	if err != nil {
		return nil, err
	}
	humanizer, err := response.NewHumanizer(completer, promptx.LoadPromptSet().Humanizer, response.WithHumanizerTimeout(llmCfg.Timeout))
	if err != nil {
		return nil, err
	}

	a.orchestrator, err = orchestrator.New(store, registry, gateway, *orchCfg,
		orchestrator.WithHumanizer(humanizer),
		orchestrator.WithLocker(locker),
	)
	if err != nil {
		return nil, err
	}
	log.Info().Str("mode", string(a.orchestrator.Mode())).Msg("orchestrator ready")
	return a, nil
}

func loadCatalog() (*catalog.Catalog, error) {
	cfg, err := configx.New[catalog.Config]("CATALOG")
	if err != nil {
		return nil, fmt.Errorf("load catalog config: %w", err)
	}
	return catalog.Load(*cfg)
}

// buildStore picks the persistence backend. Only the Redis backend shares its lock across replicas.
func (a *app) buildStore(ctx context.Context, lockWait time.Duration) (statex.Store, turnlock.Locker, error) {
	cfg, err := configx.New[StoreConfig]("STORE")
	if err != nil {
		return nil, nil, fmt.Errorf("load store config: %w", err)
	}
	opts := []statex.StoreOption{
		statex.WithKeyPrefix(cfg.KeyPrefix),
		statex.WithTTL(cfg.TTL),
		statex.WithHistoryLimit(cfg.HistoryLimit),
	}
	local := turnlock.NewLocalLocker(lockWait)

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "memory":
		return statex.NewMemoryStore(opts...), local, nil

	case "redis":
		redisCfg, err := configx.New[statex.RedisConfig]("REDIS")
		if err != nil {
			return nil, nil, fmt.Errorf("load redis config: %w", err)
		}
		client := redis.NewClient(&redis.Options{Addr: redisCfg.Addr, Password: redisCfg.Password, DB: redisCfg.DB})
		a.closers = append(a.closers, client)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		store, err := statex.NewRedisStoreFromClient(client, opts...)
		if err != nil {
			return nil, nil, err
		}
		lockCfg, err := configx.New[turnlock.RedisConfig]("TURN_LOCK")
		if err != nil {
			return nil, nil, fmt.Errorf("load turn lock config: %w", err)
		}
		lockCfg.Wait = lockWait
		locker, err := turnlock.NewRedisLocker(client, *lockCfg)
		if err != nil {
			return nil, nil, err
		}
		return store, locker, nil

	case "upstash":
		upCfg, err := configx.New[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		if err != nil {
			return nil, nil, fmt.Errorf("load upstash config: %w", err)
		}
		store, err := statex.NewUpstashRedisStore(*upCfg, opts...)
		if err != nil {
			return nil, nil, err
		}
		return store, local, nil

	case "postgres":
		pgCfg, err := configx.New[statex.PostgresConfig]("POSTGRES")
		if err != nil {
			return nil, nil, fmt.Errorf("load postgres config: %w", err)
		}
		store, err := statex.NewPostgresStore(*pgCfg, opts...)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, store)
		if err := store.InitSchema(ctx); err != nil {
			return nil, nil, err
		}
		return store, local, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

// apiOptions wires QStash signature checks and reply publishing when enabled.
func (a *app) apiOptions(httpCfg api.Config) ([]api.Option, error) {
	enabled, err := configx.New[QStashConfig]("QSTASH")
	if err != nil {
		return nil, fmt.Errorf("load qstash toggle: %w", err)
	}
	if !enabled.Enabled {
		return nil, nil
	}

	qCfg, err := configx.New[qstashx.Config]("QSTASH")
	if err != nil {
		return nil, fmt.Errorf("load qstash config: %w", err)
	}
	client, err := qstashx.NewClient(*qCfg)
	if err != nil {
		return nil, err
	}

	opts := []api.Option{api.WithVerifier(client)}
	if strings.TrimSpace(httpCfg.ReplyDestination) != "" {
		opts = append(opts, api.WithPublisher(client))
	}
	return opts, nil
}
