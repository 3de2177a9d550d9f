package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/agentrt/internal/agent"
	"github.com/nextlevelbuilder/agentrt/internal/config"
	"github.com/nextlevelbuilder/agentrt/internal/engine"
	"github.com/nextlevelbuilder/agentrt/internal/mcp"
	"github.com/nextlevelbuilder/agentrt/internal/rag"
	"github.com/nextlevelbuilder/agentrt/internal/security"
	"github.com/nextlevelbuilder/agentrt/internal/storeopen"
	"github.com/nextlevelbuilder/agentrt/internal/tools"
	"github.com/nextlevelbuilder/agentrt/internal/tracing"
)

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if env := os.Getenv("AGENTRT_CONFIG"); env != "" {
		return env
	}
	return config.ExpandHome("~/.agentrt/config.json5")
}

// buildRuntime assembles the full runtime from config: stores, engine,
// the six built-in tool families, MCP federation, the workspace BM25
// index, and telemetry. Returns a cleanup func the host must call on
// shutdown.
func buildRuntime(ctx context.Context, projectRoot string, approval tools.ApprovalFunc) (*agent.Runtime, func(), error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if projectRoot != "" {
		abs, err := filepath.Abs(projectRoot)
		if err != nil {
			return nil, nil, err
		}
		cfg.SetProjectRoot(abs)
	}
	if cfg.ProjectRoot() == "" {
		wd, _ := os.Getwd()
		cfg.SetProjectRoot(wd)
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := tracing.Init(ctx, cfg.Telemetry)
		if err != nil {
			slog.Warn("telemetry disabled: exporter init failed", "error", err)
		} else {
			cleanups = append(cleanups, func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				shutdown(sctx)
			})
		}
	}

	stores, db, err := storeopen.Open(cfg.Store)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	if db != nil {
		cleanups = append(cleanups, func() { db.Close() })
	}

	eng := engine.New(engine.NewLocalGenerator(cfg.Engine.BaseURL, cfg.Engine.ModelPath))
	if cfg.Engine.ModelPath != "" {
		pref := engine.GPUAuto
		if cfg.Engine.GPUPreference == "cpu" {
			pref = engine.GPUForceCPU
		}
		loadCtx, cancel := context.WithTimeout(ctx, 180*time.Second)
		err := eng.Load(loadCtx, cfg.Engine.ModelPath, pref, cfg.Engine.ThinkingSupported)
		cancel()
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("load model: %w", err)
		}
	}

	root := cfg.ProjectRoot()
	guard := security.NewPathGuard(root)
	cmdGuard := security.NewCommandGuard()
	backups := tools.NewBackupStore(filepath.Join(root, ".scratch", "backups"))
	memory := tools.NewMemoryStore(config.ExpandHome("~/.agentrt/memory.json"))
	todos := tools.NewTodoStore()
	browser := tools.NewBrowserSession()
	cleanups = append(cleanups, browser.Close)

	registry := tools.NewRegistry()
	for _, t := range []tools.Tool{
		tools.NewReadFileTool(guard),
		tools.NewWriteFileTool(guard, backups),
		tools.NewEditFileTool(guard, backups),
		tools.NewDeleteFileTool(guard, backups),
		tools.NewUndoEditTool(guard, backups),
		tools.NewListDirectoryTool(guard),
		tools.NewSearchFilesTool(guard),
		tools.NewGlobTool(guard),
		tools.NewExecTool(guard, cmdGuard),
		tools.NewGitStatusTool(guard),
		tools.NewGitDiffTool(guard),
		tools.NewGitLogTool(guard),
		tools.NewGitCommitTool(guard),
		tools.NewWebSearchTool(tools.WebSearchConfig{DDGEnabled: true}),
		tools.NewWebFetchTool(tools.WebFetchConfig{}),
		tools.NewBrowserNavigateTool(browser),
		tools.NewBrowserClickTool(browser),
		tools.NewBrowserTypeTool(browser),
		tools.NewBrowserSnapshotTool(browser),
		tools.NewBrowserScreenshotTool(browser),
		tools.NewMemorySetTool(memory),
		tools.NewMemoryGetTool(memory),
		tools.NewMemoryListTool(memory),
		tools.NewUpdateTodoTool(todos),
	} {
		registry.Register(t)
	}

	mcpMgr := mcp.NewManager(registry, mcp.WithConfigs(cfg.MCPServers), mcp.WithStore(stores.MCP))
	if err := mcpMgr.Start(ctx); err != nil {
		slog.Warn("mcp: some servers failed to start", "error", err)
	}
	cleanups = append(cleanups, mcpMgr.Stop)

	index := rag.NewIndex(root)
	if err := index.Reindex(); err != nil {
		slog.Warn("rag: initial index failed", "error", err)
	}
	if _, err := rag.Watch(ctx, index); err != nil {
		slog.Warn("rag: watcher unavailable", "error", err)
	}

	rt := agent.NewRuntime(agent.RuntimeConfig{
		Config:   cfg,
		Engine:   eng,
		Registry: registry,
		Stores:   stores,
		Index:    index,
		Memory:   memory,
		Approval: approval,
	})
	return rt, cleanup, nil
}
