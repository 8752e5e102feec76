package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/aura-hire/internal/ai"
	"github.com/spigell/aura-hire/internal/ai/gemini"
	"github.com/spigell/aura-hire/internal/ai/openai"
	"github.com/spigell/aura-hire/internal/ai/router"
	"github.com/spigell/aura-hire/internal/ai/scripted"
	"github.com/spigell/aura-hire/internal/interview"
	"github.com/spigell/aura-hire/internal/logger"
	"github.com/spigell/aura-hire/internal/registry"
	"github.com/spigell/aura-hire/internal/secrets"
	"github.com/spigell/aura-hire/internal/store"
	"github.com/spigell/aura-hire/internal/store/file"
	"github.com/spigell/aura-hire/internal/store/postgres"
	"github.com/spigell/aura-hire/internal/store/sqlite"
)

const (
	prefixGoogle   = "google"
	prefixOpenAI   = "openai"
	prefixScripted = "scripted"
)

// application holds everything a command needs, wired from the config.
type application struct {
	logger     *zap.Logger
	config     *Config
	store      store.Backend
	registry   *registry.Registry
	interviews *interview.Manager
}

func newLogger() *zap.Logger {
	l, err := logger.New(logger.Options{
		Service: app,
		JSON:    viper.GetBool("json"),
		Debug:   viper.GetBool("debug"),
	})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	return l
}

// newApplication opens the store and, when withInterviews is set, builds the
// completion providers and the interview manager.
func newApplication(ctx context.Context, withInterviews bool) (*application, error) {
	l := newLogger()

	config, err := getConfig()
	if err != nil {
		return nil, fmt.Errorf("getting a config: %w", err)
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	l.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	backend, err := openStore(ctx, config.Storage, l)
	if err != nil {
		return nil, err
	}

	a := &application{
		logger:   l,
		config:   config,
		store:    backend,
		registry: registry.New(backend, l),
	}

	if withInterviews {
		models, defaultModel, err := buildRouter(ctx, config, l)
		if err != nil {
			backend.Close()
			return nil, err
		}

		a.interviews = interview.NewManager(a.registry, models, interview.ManagerConfig{
			Persona:      config.Interview.persona(),
			DefaultModel: defaultModel,
		}, l)
	}

	return a, nil
}

func (a *application) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func openStore(ctx context.Context, cfg *StorageConfig, l *zap.Logger) (store.Backend, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	path := strings.TrimSpace(cfg.Path)

	var (
		backend store.Backend
		err     error
	)

	switch driver {
	case "memory":
		backend = store.NewMemory()
	case "", "file":
		backend, err = file.Open(path)
	case "sqlite":
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, app+".db")
		}
		backend, err = sqlite.Open(path)
	case "postgres":
		backend, err = postgres.Open(ctx, postgres.Options{DSN: cfg.DSN, Table: cfg.Table})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", driver, err)
	}

	l.Debug("storage opened", zap.String("driver", driver), zap.String("path", path))
	return backend, nil
}

// buildRouter registers every provider that has credentials, plus the
// scripted one, and picks the default model id.
func buildRouter(ctx context.Context, config *Config, l *zap.Logger) (*router.Router, string, error) {
	var available []string
	providers := make(map[string]ai.Provider)

	geminiKey := secrets.Source{
		Name:  "gemini api key",
		File:  config.AI.Gemini.APIKeyFile,
		Env:   "GEMINI_API_KEY",
		Value: config.AI.Gemini.APIKey,
	}
	if secrets.Configured(geminiKey) {
		key, err := secrets.Load(geminiKey)
		if err != nil {
			return nil, "", err
		}
		p, err := gemini.New(ctx, gemini.Config{
			APIKey:       key,
			Model:        config.AI.Gemini.Model,
			MaxRetries:   config.AI.Gemini.MaxRetries,
			MaxLogLength: config.AI.Gemini.MaxLogLength,
		}, l)
		if err != nil {
			return nil, "", err
		}
		providers[prefixGoogle] = p
		available = append(available, prefixGoogle+"/"+p.Model())
	}

	openaiKey := secrets.Source{
		Name:  "openai api key",
		File:  config.AI.OpenAI.APIKeyFile,
		Env:   "OPENAI_API_KEY",
		Value: config.AI.OpenAI.APIKey,
	}
	if secrets.Configured(openaiKey) {
		key, err := secrets.Load(openaiKey)
		if err != nil {
			return nil, "", err
		}
		p, err := openai.New(openai.Config{
			BaseURL: config.AI.OpenAI.BaseURL,
			APIKey:  key,
			Model:   config.AI.OpenAI.Model,
			Timeout: config.AI.OpenAI.Timeout,
		}, l)
		if err != nil {
			return nil, "", err
		}
		providers[prefixOpenAI] = p
		available = append(available, prefixOpenAI+"/"+p.Model())
	}

	available = append(available, prefixScripted+"/"+scripted.DefaultModel)

	fallback, _, _ := strings.Cut(available[0], "/")
	r := router.New(fallback, l)
	for prefix, p := range providers {
		r.Register(prefix, p)
	}
	r.Register(prefixScripted, scripted.New(scripted.Config{
		Questions: config.AI.Scripted.Questions,
		Delay:     config.AI.Scripted.Delay,
	}, l))

	defaultModel := strings.TrimSpace(config.Interview.DefaultModel)
	if defaultModel == "" {
		defaultModel = available[0]
	}

	l.Info("completion providers ready",
		zap.Strings("models", available),
		zap.String("default_model", defaultModel),
	)
	return r, defaultModel, nil
}

// redacted copies config with secrets blanked for debug output.
func redacted(config *Config) Config {
	out := *config
	if config.AI != nil {
		aiCopy := *config.AI
		if aiCopy.Gemini != nil && aiCopy.Gemini.APIKey != "" {
			g := *aiCopy.Gemini
			g.APIKey = "***"
			aiCopy.Gemini = &g
		}
		if aiCopy.OpenAI != nil && aiCopy.OpenAI.APIKey != "" {
			o := *aiCopy.OpenAI
			o.APIKey = "***"
			aiCopy.OpenAI = &o
		}
		out.AI = &aiCopy
	}
	if config.Storage != nil && config.Storage.DSN != "" {
		s := *config.Storage
		s.DSN = "***"
		out.Storage = &s
	}
	return out
}
