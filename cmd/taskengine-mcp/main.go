// Command taskengine-mcp serves the task engine's intent dispatcher over
// the Model Context Protocol on stdio, for agents that drive the task
// tree through an MCP client rather than a CLI.
package main

import (
	"context"
	"flag"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"github.com/apply-task/taskengine/internal/config"
	"github.com/apply-task/taskengine/internal/evidence"
	"github.com/apply-task/taskengine/internal/history"
	"github.com/apply-task/taskengine/internal/intent"
	"github.com/apply-task/taskengine/internal/logging"
	"github.com/apply-task/taskengine/internal/mcpserver"
	"github.com/apply-task/taskengine/internal/repository"
)

var (
	configPath string
	tasksDir   string
	debug      bool
)

func init() {
	flag.StringVar(&configPath, "config", "", "path to taskengine config yaml")
	flag.StringVar(&tasksDir, "tasks-dir", "", "tasks root (overrides config)")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
}

func main() {
	flag.Parse()
	_ = godotenv.Load()
	logging.Init(debug)

	app := fx.New(
		fx.Supply(fx.Annotate(configPath, fx.ResultTags(`name:"configPath"`))),
		fx.Supply(fx.Annotate(tasksDir, fx.ResultTags(`name:"tasksDirOverride"`))),
		fx.Provide(
			fx.Annotate(provideConfig, fx.ParamTags(`name:"configPath"`, `name:"tasksDirOverride"`)),
			provideRepository,
			provideFocusStore,
			provideHistory,
			provideEvidenceStore,
			provideDispatcher,
			provideMCPServer,
		),
		fx.Invoke(runServer),
		fx.NopLogger,
	)

	app.Run()
}

func provideConfig(configPath, tasksDirOverride string) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if tasksDirOverride != "" {
		cfg.TasksDir = tasksDirOverride
	}
	if cfg.TasksDir == "" {
		cfg.TasksDir = "./tasks"
	}
	return cfg, nil
}

func provideRepository(cfg config.Config) *repository.Repository {
	return repository.New(cfg.TasksDir)
}

func provideFocusStore(cfg config.Config) *repository.FocusStore {
	return repository.NewFocusStore(cfg.TasksDir)
}

func provideHistory(cfg config.Config) (*history.History, error) {
	return history.Load(cfg.TasksDir)
}

func provideEvidenceStore(cfg config.Config) *evidence.Store {
	return evidence.NewStore(cfg.TasksDir)
}

func provideDispatcher(repo *repository.Repository, focus *repository.FocusStore, hist *history.History, ev *evidence.Store) *intent.Dispatcher {
	return intent.New(repo, focus, hist, ev)
}

func provideMCPServer(d *intent.Dispatcher) *mcpserver.Server {
	return mcpserver.New(d)
}

func runServer(lc fx.Lifecycle, srv *mcpserver.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				transport := &mcp.StdioTransport{}
				if err := srv.Run(context.Background(), transport); err != nil {
					log.Error().Err(err).Msg("mcp server exited")
				}
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return nil
		},
	})
}
