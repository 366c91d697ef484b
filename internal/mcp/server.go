package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ppiankov/actiongate/internal/approval"
	"github.com/ppiankov/actiongate/internal/authorizer"
	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/policy"
)

// Config holds MCP server configuration.
type Config struct {
	// Actor is the label used for callers that do not name themselves.
	Actor   string
	Version string
}

// Server wraps the MCP SDK server around an authorizer.
type Server struct {
	mcpServer *mcpsdk.Server
	authz     *authorizer.Authorizer
	holds     *approval.Store
	actor     model.Actor
	logger    *zap.Logger
}

// New creates an MCP server with the actiongate tools registered. holds may
// be nil, in which case the pending tool reports an empty queue.
func New(authz *authorizer.Authorizer, holds *approval.Store, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	label := cfg.Actor
	if label == "" {
		label = "mcp"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		authz:  authz,
		holds:  holds,
		actor:  policy.NewActor(label, map[string]string{"transport": "mcp"}),
		logger: logger,
	}
	s.mcpServer = mcpsdk.NewServer(&mcpsdk.Implementation{Name: "actiongate", Version: version}, nil)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("actiongate MCP server running on stdio",
		zap.String("actor", s.actor.Name), zap.String("actor_type", string(s.actor.Type)))
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all actiongate tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "actiongate_authorize",
		Description: "Ask whether an action may be performed before doing it. Returns allow, deny, or hold with the reason and the follow-up actions a hold requires.",
	}, s.handleAuthorize)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "actiongate_authorize_batch",
		Description: "Authorize several actions at once. Every action is decided; all_allowed is true only when each one is allowed.",
	}, s.handleAuthorizeBatch)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "actiongate_gate_status",
		Description: "Report the last validation gate result. Set rerun to run the gate now.",
	}, s.handleGateStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "actiongate_pending",
		Description: "List held actions waiting for human review.",
	}, s.handlePending)
}
