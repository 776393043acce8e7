package main

import (
	"github.com/pario-ai/tandem/pkg/cache/sqlite"
	"github.com/pario-ai/tandem/pkg/completion"
	"github.com/pario-ai/tandem/pkg/config"
	"github.com/pario-ai/tandem/pkg/failover"
	"github.com/pario-ai/tandem/pkg/logging"
	"github.com/pario-ai/tandem/pkg/mcp"
	"github.com/pario-ai/tandem/pkg/prompt"
	"github.com/pario-ai/tandem/pkg/registry"
	"github.com/pario-ai/tandem/pkg/tracker"
)

// app bundles everything a command needs, built from one config file.
type app struct {
	cfg      *config.Config
	cache    *sqlite.Cache
	tracker  *tracker.SQLiteTracker
	registry *registry.Registry
	svc      *completion.Service
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{
		Level:      cfg.Log.Level,
		TimeFormat: cfg.Log.TimeFormat,
		ShowCaller: cfg.Log.Caller,
	})
	return cfg, nil
}

func openApp(path string) (*app, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, registry: registry.New(config.FileSource{Path: path})}

	a.tracker, err = tracker.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	opts := completion.Options{
		Sessions: failover.NewSessions(),
		Prompts: prompt.NewBuilder(prompt.Templates{
			Transform: cfg.Prompts.Transform,
			Interpret: cfg.Prompts.Interpret,
		}, cfg.Provider.Temperature, cfg.Provider.MaxTokens),
		Version: cfg.Cache.Version,
	}

	if cfg.Cache.Enabled {
		a.cache, err = sqlite.New(cfg.DBPath, cfg.Cache.TTL)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts.Cache = a.cache
	}

	opts.Client = failover.New(a.registry, failover.Options{
		Endpoint: cfg.Provider.URL,
		APIKey:   cfg.Provider.APIKey,
		Timeout:  cfg.Failover.Timeout,
		Backoff:  cfg.Failover.Backoff,
		Recorder: a.tracker,
	})
	a.svc = completion.New(opts)
	return a, nil
}

// statter returns the cache as an mcp.CacheStatter, or nil when caching is
// disabled.
func (a *app) statter() mcp.CacheStatter {
	if a.cache == nil {
		return nil
	}
	return a.cache
}

func (a *app) Close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.tracker != nil {
		_ = a.tracker.Close()
	}
}
