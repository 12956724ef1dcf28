// Package mcp exposes containment checks, scanning and the approval queue
// as Model Context Protocol tools over stdio.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ppiankov/podguard/internal/containment"
)

// Config holds MCP server configuration.
type Config struct {
	Version string
	// Actor is recorded as the approver for approve and reject calls
	// that do not name one.
	Actor string
}

// Server wraps the MCP SDK server around a containment engine.
type Server struct {
	mcpServer *mcpsdk.Server
	engine    *containment.Engine
	logger    *zap.Logger
	actor     string
}

// New creates an MCP server with all podguard tools registered.
func New(engine *containment.Engine, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	actor := cfg.Actor
	if actor == "" {
		actor = "mcp"
	}

	s := &Server{engine: engine, logger: logger, actor: actor}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "podguard",
			Version: version,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all podguard tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "podguard_check_clipboard",
		Description: "Check whether a clipboard sync into or out of a session's pod is allowed. Denied checks return an error result with the reason.",
	}, s.handleCheckClipboard)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "podguard_check_file",
		Description: "Check whether a file upload (INBOUND) or download (OUTBOUND) is allowed. May open an approval request.",
	}, s.handleCheckFile)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "podguard_check_network",
		Description: "Check whether the pod may reach a URL.",
	}, s.handleCheckNetwork)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "podguard_check_peripheral",
		Description: "Check whether a USB device, webcam, microphone or printer may be redirected into the pod.",
	}, s.handleCheckPeripheral)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "podguard_check_print",
		Description: "Check whether a print job may leave the pod.",
	}, s.handleCheckPrint)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "podguard_check_screen_capture",
		Description: "Check whether the pod display may be captured.",
	}, s.handleCheckScreen)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "podguard_evaluate_transfer",
		Description: "Evaluate a data transfer of any type and record the attempt. Pass approval_request_id to use an approved request.",
	}, s.handleEvaluate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "podguard_scan",
		Description: "Scan text for sensitive data and malware signatures without a policy decision.",
	}, s.handleScan)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "podguard_pending",
		Description: "List pending file transfer approval requests.",
	}, s.handlePending)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "podguard_approve",
		Description: "Approve a pending file transfer request.",
	}, s.handleApprove)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "podguard_reject",
		Description: "Reject a pending file transfer request. A reason is required.",
	}, s.handleReject)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "podguard_watermark",
		Description: "Render the display watermark for a session.",
	}, s.handleWatermark)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "podguard_attempts",
		Description: "List a session's recorded transfer attempts, newest first.",
	}, s.handleAttempts)
}
