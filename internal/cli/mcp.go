package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/typegate/internal/engine"
	gatemcp "github.com/ppiankov/typegate/internal/mcp"
)

var (
	mcpPolicy   string
	mcpAuditLog string
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpPolicy, "policy", "", "Path to policy YAML (default ~/.typegate/policy.yaml)")
	mcpCmd.Flags().StringVar(&mcpAuditLog, "audit-log", "", "Path to audit log JSONL file")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long:  "Runs typegate as an MCP (Model Context Protocol) server over stdio.\nExposes typegate_check and typegate_decode. Decoding is always secure.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	eng, err := engine.New(engine.Config{PolicyPath: mcpPolicy, AuditLogPath: mcpAuditLog, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("typegate MCP server running on stdio", "policy", eng.PolicyPath(), "policy_hash", eng.PolicyHash())
	return gatemcp.New(eng, gatemcp.Config{Version: version}).Run(ctx)
}
