package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	consul "github.com/knadh/koanf/providers/consul/v2"
	etcd "github.com/knadh/koanf/providers/etcd/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/aiwhisperer/core/pkg/aiwerrors"
	aiwlog "github.com/aiwhisperer/core/pkg/logger"
)

// BackendType selects where the primary config document is loaded from.
// AIWhisperer's default path is plain file+env; consul/etcd/zookeeper are
// kept as alternate backends for operators running a shared control plane.
type BackendType string

const (
	BackendFile      BackendType = "file"
	BackendConsul    BackendType = "consul"
	BackendEtcd      BackendType = "etcd"
	BackendZookeeper BackendType = "zookeeper"
)

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	Type      BackendType
	Path      string
	Endpoints []string
	Watch     bool
	OnChange  func(*Config) error
}

// Loader loads and optionally watches AIWhisperer's config document.
type Loader struct {
	koanf    *koanf.Koanf
	options  LoaderOptions
	parser   *yaml.YAML
	stopChan chan struct{}
	logger   *slog.Logger
}

// NewLoader creates a Loader for opts. Endpoints default to the standard
// local port for the chosen backend when unset.
func NewLoader(opts LoaderOptions, logger *slog.Logger) (*Loader, error) {
	if opts.Type == "" {
		opts.Type = BackendFile
	}
	if opts.Path == "" {
		return nil, aiwerrors.New(aiwerrors.KindConfig, "config path is required")
	}
	if logger == nil {
		logger = aiwlog.Get()
	}
	if len(opts.Endpoints) == 0 {
		switch opts.Type {
		case BackendConsul:
			opts.Endpoints = []string{"localhost:8500"}
		case BackendEtcd:
			opts.Endpoints = []string{"localhost:2379"}
		case BackendZookeeper:
			opts.Endpoints = []string{"localhost:2181"}
		}
	}

	return &Loader{
		koanf:    koanf.New("."),
		options:  opts,
		parser:   yaml.Parser(),
		stopChan: make(chan struct{}),
		logger:   logger,
	}, nil
}

func (l *Loader) newProvider() (koanf.Provider, error) {
	switch l.options.Type {
	case BackendFile:
		return file.Provider(l.options.Path), nil
	case BackendConsul:
		cfg := api.DefaultConfig()
		cfg.Address = l.options.Endpoints[0]
		return consul.Provider(consul.Config{Cfg: cfg, Key: l.options.Path}), nil
	case BackendEtcd:
		cli, err := clientv3.New(clientv3.Config{
			Endpoints:   l.options.Endpoints,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return nil, aiwerrors.Wrap(aiwerrors.KindConfig, "connect to etcd", err)
		}
		return etcd.Provider(etcd.Config{
			Client: cli,
			Key:    l.options.Path,
		}), nil
	case BackendZookeeper:
		return NewZookeeperProvider(l.options.Endpoints, l.options.Path)
	default:
		return nil, aiwerrors.New(aiwerrors.KindConfig, "unsupported config backend: "+string(l.options.Type))
	}
}

func (l *Loader) parserFor() koanf.Parser {
	if l.options.Type == BackendFile || l.options.Type == BackendZookeeper {
		return l.parser
	}
	return nil
}

// Load reads the config document, expands ${ENV} references, applies the
// process-environment overlay, and decodes into a Config. If Watch is
// set, a background goroutine re-decodes on change and invokes OnChange.
func (l *Loader) Load() (*Config, error) {
	provider, err := l.newProvider()
	if err != nil {
		return nil, err
	}

	if err := l.koanf.Load(provider, l.parserFor()); err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindConfig, "load config from "+string(l.options.Type), err)
	}
	if err := l.expandEnv(); err != nil {
		return nil, err
	}
	if err := l.koanf.Load(confmap.Provider(envOverlay(), "."), nil); err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindConfig, "apply environment overlay", err)
	}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}

	if l.options.Watch {
		go l.watch(provider)
	}
	return cfg, nil
}

// envOverlay maps select OPENROUTER_* process env vars onto the koanf
// keys they override, applied as a confmap provider after file load.
func envOverlay() map[string]any {
	overlay := map[string]any{}
	if key := OpenRouterAPIKey(); key != "" {
		overlay["openrouter.api_key"] = key
	}
	return overlay
}

type watcher interface {
	Watch(cb func(event any, err error)) error
}

func (l *Loader) watch(provider koanf.Provider) {
	if l.options.Type == BackendFile {
		l.logger.Info("config watcher started", "backend", l.options.Type)
		watchFile(l.options.Path, l.stopChan, func() {
			if err := l.koanf.Load(provider, l.parserFor()); err != nil {
				l.logger.Warn("failed to reload config", "error", err)
				return
			}
			if err := l.expandEnv(); err != nil {
				l.logger.Warn("failed to expand env vars in reloaded config", "error", err)
				return
			}
			cfg, err := l.decode()
			if err != nil {
				l.logger.Warn("reloaded config failed to decode", "error", err)
				return
			}
			if l.options.OnChange != nil {
				if err := l.options.OnChange(cfg); err != nil {
					l.logger.Warn("config change callback failed", "error", err)
				}
			}
		})
		return
	}

	w, ok := provider.(watcher)
	if !ok {
		l.logger.Warn("config backend does not support watching", "backend", l.options.Type)
		return
	}

	l.logger.Info("config watcher started", "backend", l.options.Type)
	err := w.Watch(func(event any, watchErr error) {
		select {
		case <-l.stopChan:
			return
		default:
		}
		if watchErr != nil {
			l.logger.Warn("config watch error", "error", watchErr)
			return
		}
		if err := l.koanf.Load(provider, l.parserFor()); err != nil {
			l.logger.Warn("failed to reload config", "error", err)
			return
		}
		if err := l.expandEnv(); err != nil {
			l.logger.Warn("failed to expand env vars in reloaded config", "error", err)
			return
		}
		cfg, err := l.decode()
		if err != nil {
			l.logger.Warn("reloaded config failed to decode", "error", err)
			return
		}
		if l.options.OnChange != nil {
			if err := l.options.OnChange(cfg); err != nil {
				l.logger.Warn("config change callback failed", "error", err)
			}
		}
	})
	if err != nil {
		l.logger.Warn("config watch stopped", "error", err)
	}
}

func (l *Loader) expandEnv() error {
	expanded, ok := ExpandEnvVarsInData(l.koanf.Raw()).(map[string]any)
	if !ok {
		return aiwerrors.New(aiwerrors.KindConfig, "unexpected type after environment expansion")
	}
	next := koanf.New(".")
	if err := next.Load(confmap.Provider(expanded, "."), nil); err != nil {
		return aiwerrors.Wrap(aiwerrors.KindConfig, "load expanded config", err)
	}
	l.koanf = next
	return nil
}

func (l *Loader) decode() (*Config, error) {
	cfg := Defaults()
	if err := l.koanf.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindConfig, "decode config", err)
	}
	return cfg, nil
}

// Stop ends a running watch goroutine.
func (l *Loader) Stop() {
	close(l.stopChan)
}

// Load is a convenience wrapper that builds a one-shot Loader and loads
// immediately.
func Load(opts LoaderOptions, logger *slog.Logger) (*Config, error) {
	l, err := NewLoader(opts, logger)
	if err != nil {
		return nil, err
	}
	return l.Load()
}

// ParseBackendType parses a backend name from config/flags.
func ParseBackendType(s string) (BackendType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file", "":
		return BackendFile, nil
	case "consul":
		return BackendConsul, nil
	case "etcd":
		return BackendEtcd, nil
	case "zookeeper", "zk":
		return BackendZookeeper, nil
	default:
		return "", aiwerrors.New(aiwerrors.KindConfig, fmt.Sprintf("invalid config backend: %s", s))
	}
}
