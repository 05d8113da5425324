// Command aiwhisperer starts the multi-agent runtime: the async session
// manager driving one AI loop per agent, the mailbox connecting them, and
// the external MCP/WebSocket/HTTP surfaces that expose it. Grounded on the
// teacher's cmd/hector CLI (kong-based command tree, serve as the primary
// verb), trimmed to the narrowest framing spec.md's non-goals allow: exit
// codes and a handful of flags, not a full flag/config builder UI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/aiwhisperer/core/pkg/accumulator"
	"github.com/aiwhisperer/core/pkg/aiservice"
	"github.com/aiwhisperer/core/pkg/archive"
	"github.com/aiwhisperer/core/pkg/config"
	aictx "github.com/aiwhisperer/core/pkg/context"
	"github.com/aiwhisperer/core/pkg/httpsurface"
	aiwlog "github.com/aiwhisperer/core/pkg/logger"
	"github.com/aiwhisperer/core/pkg/loop"
	"github.com/aiwhisperer/core/pkg/loopmanager"
	"github.com/aiwhisperer/core/pkg/mailbox"
	"github.com/aiwhisperer/core/pkg/mcpserver"
	"github.com/aiwhisperer/core/pkg/modelcaps"
	"github.com/aiwhisperer/core/pkg/observability"
	"github.com/aiwhisperer/core/pkg/pathguard"
	"github.com/aiwhisperer/core/pkg/persistence"
	"github.com/aiwhisperer/core/pkg/sessionmanager"
	"github.com/aiwhisperer/core/pkg/tool"
	"github.com/aiwhisperer/core/pkg/tool/docreader"
	"github.com/aiwhisperer/core/pkg/tool/filetool"
	"github.com/aiwhisperer/core/pkg/tool/mailtool"
	"github.com/aiwhisperer/core/pkg/tool/plugintool"
	toolregistry "github.com/aiwhisperer/core/pkg/tool/registry"
	"github.com/aiwhisperer/core/pkg/wsrpc"
)

// snapshotInterval is how often each agent's context store is snapshotted
// to disk while the runtime is up.
const snapshotInterval = 30 * time.Second

// snapshotMaxAge bounds how long a stale snapshot (from an agent no
// longer configured) is kept before Cleanup removes it.
const snapshotMaxAge = 30 * 24 * time.Hour

// version is set at build time via -ldflags; "dev" otherwise.
var version = "dev"

// CLI is the root command tree.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the session manager and its external surfaces."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config   string `short:"c" help:"Path to config file." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli, kong.Name("aiwhisperer"), kong.Description("Multi-agent orchestration runtime."))
	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	fmt.Println("aiwhisperer", version)
	return nil
}

// ValidateCmd loads and validates a config file without starting anything.
type ValidateCmd struct {
	PrintConfig bool `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if err := cfg.Archive.Validate(); err != nil {
		return err
	}
	if c.PrintConfig {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	fmt.Println("config OK")
	return nil
}

// ServeCmd starts the full runtime: session manager, mailbox, tool
// registry, durable archive, and the MCP/WS/HTTP surfaces.
type ServeCmd struct {
	Agents []string `help:"Agent names to start sessions for." default:"assistant"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	level, err := aiwlog.ParseLevel(cli.LogLevel)
	if err != nil {
		return err
	}
	aiwlog.Init(level, os.Stderr, "simple")
	logger := aiwlog.Get()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	obsManager, err := observability.NewManager(ctx, &cfg.Observability)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() { _ = obsManager.Shutdown(context.Background()) }()

	archiveReg := archive.NewRegistry()
	archiveStore, err := archiveReg.Open("default", &cfg.Archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveStore.Close()

	guard, err := pathguard.New(cfg.WorkspacePath)
	if err != nil {
		return fmt.Errorf("init workspace guard: %w", err)
	}

	mb := mailbox.New()
	mb.RegisterNotificationHandler(archive.NotificationHandler(ctx, archiveStore, func(err error) {
		logger.Warn("archive append failed", "error", err)
	}))

	registry := toolregistry.New(logger)
	registry.RegisterSpec("read_file", func() (tool.Tool, error) { return filetool.NewReadFile(guard, 0), nil })
	registry.RegisterSpec("write_file", func() (tool.Tool, error) { return filetool.NewWriteFile(guard, filetool.WriteFileConfig{}), nil })
	registry.RegisterSpec("list_directory", func() (tool.Tool, error) { return filetool.NewListDirectory(guard), nil })
	registry.RegisterSpec("read_document", func() (tool.Tool, error) { return docreader.NewReadDocument(guard), nil })
	registry.RegisterSpec("check_mail", func() (tool.Tool, error) { return mailtool.NewCheckMail(mb), nil })

	plugins, err := loadPlugins(cfg.PluginPaths, registry, logger)
	if err != nil {
		return fmt.Errorf("load plugin tools: %w", err)
	}
	defer closePlugins(plugins)

	client := aiservice.New(aiservice.Config{
		APIKey:  os.Getenv("OPENROUTER_API_KEY"),
		SiteURL: cfg.OpenRouter.SiteURL,
		AppName: cfg.OpenRouter.AppName,
	})

	execFn := toolExecutor(registry)
	factory := loopmanager.NewLoopFactory(client, registry, execFn, loop.Options{
		Model:         cfg.OpenRouter.Model,
		MaxIterations: cfg.Loop.MaxInternalIterations,
		Caps:          modelcaps.New(logger),
	}, func(agentName string) string {
		return cfg.PromptFor(agentName, "You are "+agentName+", an agent in a multi-agent workspace.")
	})
	loops := loopmanager.New(factory)

	hub := wsrpc.New()
	manager := sessionmanager.New(mb, hub.Sink(), logger)
	registry.RegisterSpec("agent_sleep", func() (tool.Tool, error) { return mailtool.NewAgentSleep(manager), nil })

	persistMgr, err := persistence.New(filepath.Join(cfg.OutputDir, "state"))
	if err != nil {
		return fmt.Errorf("init persistence: %w", err)
	}
	if removed, err := persistMgr.Cleanup(time.Now(), snapshotMaxAge); err != nil {
		logger.Warn("snapshot cleanup failed", "error", err)
	} else if len(removed) > 0 {
		logger.Info("removed stale snapshots", "agents", removed)
	}

	agentLoops := make(map[string]*loop.Loop, len(c.Agents))
	for _, agent := range c.Agents {
		l := loops.GetOrCreate(agent, cfg.ModelFor(agent))
		if snap, err := persistMgr.Load(agent); err == nil {
			if store, err := aictx.Load(snap.State); err == nil {
				l.RestoreStore(store)
				logger.Info("restored agent context from snapshot", "agent", agent, "saved_at", snap.SavedAt)
			} else {
				logger.Warn("discarding unreadable snapshot", "agent", agent, "error", err)
			}
		}
		agentLoops[agent] = l
		manager.CreateAgentSession(ctx, agent, l, true)
	}

	mcpSrv := mcpserver.New("aiwhisperer", version, registry, c.Agents[0])

	var auth *httpsurface.JWTAuth
	if cfg.Surface.JWKSURL != "" {
		auth, err = httpsurface.NewJWTAuth(ctx, cfg.Surface.JWKSURL, cfg.Surface.Issuer, cfg.Surface.Audience)
		if err != nil {
			return fmt.Errorf("init auth: %w", err)
		}
	}
	surface := httpsurface.New(httpsurface.Config{Auth: auth}, guard, manager, obsManager.Metrics())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(snapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				snapshotAgents(persistMgr, agentLoops, logger)
				return nil
			case <-ticker.C:
				snapshotAgents(persistMgr, agentLoops, logger)
			}
		}
	})
	if cfg.Surface.HTTPAddr != "" {
		runServer(g, gctx, logger, "http", cfg.Surface.HTTPAddr, surface)
	}
	if cfg.Surface.WSAddr != "" {
		runServer(g, gctx, logger, "ws", cfg.Surface.WSAddr, hub)
	}
	if cfg.Surface.MCPStdio {
		g.Go(func() error {
			logger.Info("mcp surface listening", "transport", "stdio")
			return mcpSrv.ServeStdio()
		})
	}

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		logger.Error("surface failed", "error", err)
	} else {
		logger.Info("shutting down")
	}
	manager.Stop()
	return nil
}

// runServer adds a goroutine to g that serves handler on addr and shuts
// it down gracefully once gctx is cancelled, so a failure in one surface
// (or the parent context closing) doesn't leave the others listening
// forever.
func runServer(g *errgroup.Group, gctx context.Context, logger *slog.Logger, name, addr string, handler http.Handler) {
	srv := &http.Server{Addr: addr, Handler: handler}
	g.Go(func() error {
		logger.Info(name+" surface listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// loadPlugins starts every configured external tool-plugin subprocess,
// registering each under the name its own Describe() call reports. Unlike
// the built-in tool specs, a plugin's process must already be running to
// know its name, so there is no lazy-construction step: loadPlugins dials
// every plugin eagerly and fails startup if any of them cannot be reached.
func loadPlugins(paths []string, registry *toolregistry.Registry, logger *slog.Logger) ([]*plugintool.ExternalTool, error) {
	loaded := make([]*plugintool.ExternalTool, 0, len(paths))
	for _, path := range paths {
		ext, err := plugintool.Load(path)
		if err != nil {
			closePlugins(loaded)
			return nil, fmt.Errorf("load plugin %s: %w", path, err)
		}
		loaded = append(loaded, ext)
		registry.RegisterSpec(ext.Name(), func() (tool.Tool, error) { return ext, nil })
		logger.Info("loaded plugin tool", "name", ext.Name(), "path", path)
	}
	return loaded, nil
}

// closePlugins terminates every loaded plugin subprocess.
func closePlugins(plugins []*plugintool.ExternalTool) {
	for _, p := range plugins {
		p.Close()
	}
}

// snapshotAgents atomically persists every agent's current context store,
// so a restart can pick its conversations back up via persistMgr.Load.
func snapshotAgents(mgr *persistence.Manager, loops map[string]*loop.Loop, logger *slog.Logger) {
	now := time.Now()
	for agent, l := range loops {
		if err := mgr.Save(agent, agent, now, l.Store()); err != nil {
			logger.Warn("agent snapshot failed", "agent", agent, "error", err)
		}
	}
}

func loadConfig(cli *CLI) (*config.Config, error) {
	if cli.Config == "" {
		return config.Defaults(), nil
	}
	return config.Load(config.LoaderOptions{Path: cli.Config}, slog.Default())
}

// toolExecutor adapts a tool registry into loop.Executor, constructing an
// ephemeral tool.Context per call since the loop only supplies the agent
// name and the call itself, not a connection-scoped context.
func toolExecutor(registry *toolregistry.Registry) loop.Executor {
	return func(ctx context.Context, agentName string, call accumulator.ToolCall) (string, error) {
		t, err := registry.Get(call.Name)
		if err != nil {
			return "", err
		}
		callable, ok := t.(tool.CallableTool)
		if !ok {
			return "", fmt.Errorf("tool %s is not callable", call.Name)
		}
		out, err := callable.Call(execContext{Context: ctx, agent: agentName, callID: call.ID}, call.Arguments)
		if err != nil {
			return "", err
		}
		rendered, err := json.Marshal(out)
		if err != nil {
			return "", err
		}
		return string(rendered), nil
	}
}

// execContext is the tool.Context implementation used for calls
// originating from the AI loop itself.
type execContext struct {
	context.Context
	agent  string
	callID string
}

func (c execContext) AgentName() string      { return c.agent }
func (c execContext) FunctionCallID() string { return c.callID }
