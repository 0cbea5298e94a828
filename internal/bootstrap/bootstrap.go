// Package bootstrap assembles the services shared by the API and the CLI
// from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"pixshop/internal/adapter/repo"
	"pixshop/internal/catalog"
	"pixshop/internal/composer"
	"pixshop/internal/domain"
	"pixshop/internal/events"
	"pixshop/internal/http/handlers"
	"pixshop/internal/infra"
	"pixshop/internal/infra/credentials"
	"pixshop/internal/presets"
	"pixshop/internal/providers/genai"
	"pixshop/internal/providers/prompt"
	"pixshop/internal/storage"
)

// Services is the wired object graph.
type Services struct {
	Config      *infra.Config
	Logger      infra.Logger
	Origin      string
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	SQL         *infra.SQLRunner
	Credentials *credentials.Store
	Catalog     *catalog.Registry
	Presets     *presets.Service
	GenAI       *genai.Client
	Prompts     *prompt.Service
	Describer   *composer.CachedDescriber
	Composer    *composer.Composer
	Output      *storage.FileStore
	Relay       events.Relay

	closers []func()
}

// New connects the configured backends and builds every service. On failure
// everything opened so far is released.
func New(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Services, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	s := &Services{Config: cfg, Logger: logger, Origin: uuid.NewString()}
	if err := s.build(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Services) build(ctx context.Context) error {
	cfg := s.Config
	var err error
	if s.Catalog, err = catalog.Default(); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if err = s.connect(ctx); err != nil {
		return err
	}

	presetRepo, err := s.presetRepository()
	if err != nil {
		return err
	}

	var keys genai.KeySource
	if s.Credentials != nil {
		keys = s.Credentials
	}
	s.GenAI, err = genai.NewClient(genai.Options{
		APIKey:         cfg.GeminiAPIKey,
		Keys:           keys,
		BaseURL:        cfg.GeminiBaseURL,
		ImageModel:     cfg.GeminiImageModel,
		FastImageModel: cfg.GeminiFastImageModel,
		TextModel:      cfg.GeminiTextModel,
		FastTextModel:  cfg.GeminiFastTextModel,
		Timeout:        cfg.GeminiTimeout,
		RPS:            cfg.GeminiRPS,
		Burst:          cfg.GeminiBurst,
		Catalog:        s.Catalog,
		Logger:         &s.Logger,
	})
	if err != nil {
		return fmt.Errorf("genai client: %w", err)
	}

	if s.Prompts, err = prompt.NewService(prompt.Options{Generator: s.GenAI, Catalog: s.Catalog, Logger: &s.Logger}); err != nil {
		return err
	}

	bus := events.NewBus[events.PresetsUpdated]()
	s.Presets, err = presets.NewService(presets.Options{
		Repo:       presetRepo,
		Bus:        bus,
		Metadata:   s.Prompts,
		Collection: cfg.PresetCollection,
		Origin:     s.Origin,
		Logger:     &s.Logger,
	})
	if err != nil {
		return err
	}

	if s.Describer, err = composer.NewCachedDescriber(s.GenAI, cfg.SubjectCacheSize); err != nil {
		return fmt.Errorf("subject cache: %w", err)
	}
	s.Composer, err = composer.New(composer.Options{
		Catalog:   s.Catalog,
		Presets:   s.Presets,
		Describer: s.Describer,
		Logger:    &s.Logger,
	})
	if err != nil {
		return err
	}

	if cfg.OutputDir != "" {
		if s.Output, err = storage.NewFileStore(cfg.OutputDir); err != nil {
			return fmt.Errorf("output dir: %w", err)
		}
	}

	switch cfg.EventRelay {
	case infra.BackendPostgres:
		s.Relay = events.NewPGListener(cfg.DatabaseURL, cfg.PresetCollection, s.Origin, bus, &s.Logger)
	case infra.BackendRedis:
		s.Relay = events.NewRedisRelay(s.Redis, cfg.PresetCollection, s.Origin, bus, &s.Logger)
	}
	return nil
}

func (s *Services) connect(ctx context.Context) error {
	cfg := s.Config
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return err
		}
		s.Pool = pool
		s.closers = append(s.closers, pool.Close)
		s.SQL = infra.NewSQLRunner(pool, s.Logger)
		s.Credentials = credentials.NewStore(s.SQL, cfg.CredentialsCacheTTL)
	}
	if cfg.RedisURL != "" && (cfg.PresetBackend == infra.BackendRedis || cfg.EventRelay == infra.BackendRedis) {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		s.closers = append(s.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		s.Redis = client
	}
	return nil
}

func (s *Services) presetRepository() (domain.PresetRepository, error) {
	cfg := s.Config
	switch cfg.PresetBackend {
	case infra.BackendPostgres:
		if s.SQL == nil {
			return nil, errors.New("postgres backend needs DATABASE_URL")
		}
		return repo.NewPresetRepositoryPG(s.SQL, cfg.PresetCollection, s.Origin), nil
	case infra.BackendRedis:
		if s.Redis == nil {
			return nil, errors.New("redis backend needs REDIS_URL")
		}
		return repo.NewPresetRepositoryRedis(s.Redis, cfg.PresetCollection, s.Origin, &s.Logger), nil
	default:
		store, err := storage.NewFileStore(cfg.PresetFileDir)
		if err != nil {
			return nil, err
		}
		return repo.NewPresetRepositoryFile(store, cfg.PresetCollection), nil
	}
}

// App returns the HTTP handler container.
func (s *Services) App() *handlers.App {
	return &handlers.App{
		Presets:  s.Presets,
		Prompts:  s.Prompts,
		Composer: s.Composer,
		Images:   s.GenAI,
		Catalog:  s.Catalog,
		Output:   s.Output,
		Logger:   &s.Logger,
	}
}

// StartRelay runs the configured relay until ctx ends. Without a relay it
// does nothing.
func (s *Services) StartRelay(ctx context.Context) {
	if s.Relay == nil {
		return
	}
	go func() {
		if err := s.Relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.Logger.Error().Err(err).Msg("preset relay stopped")
		}
	}()
}

// Close releases connections in reverse order of opening.
func (s *Services) Close() {
	if s == nil {
		return
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
