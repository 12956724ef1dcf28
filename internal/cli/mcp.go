package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	podmcp "github.com/ppiankov/podguard/internal/mcp"
	"github.com/ppiankov/podguard/internal/server"
	"github.com/ppiankov/podguard/internal/service"
)

var mcpActor string

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpActor, "actor", "mcp", "Approver name recorded when a tool call names none")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs podguard as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes containment checks, content scanning, the approval queue,\n" +
		"watermarks and transfer attempts as tools.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := service.New(ctx, cfg, service.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to start runtime: %w", err)
	}
	defer rt.Close()

	if reloader, err := server.NewReloader(rt, rt.WatchPaths(), logger); err != nil {
		logger.Warn("hot-reload disabled", zap.Error(err))
	} else {
		go reloader.Run(ctx)
	}

	srv := podmcp.New(rt.Engine(), podmcp.Config{Version: version, Actor: mcpActor}, logger)
	logger.Info("podguard MCP server running on stdio", zap.String("policy_hash", rt.PolicyHash()))
	return srv.Run(ctx)
}
