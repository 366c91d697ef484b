// Package server exposes the authorizer over gRPC.
package server

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/actiongate/internal/authorizer"
	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/policy"
)

// Config holds gRPC server configuration.
type Config struct {
	Port      int
	FlushPath string
}

// Server implements the ActionGate gRPC service.
type Server struct {
	authz  *authorizer.Authorizer
	cfg    Config
	logger *zap.Logger

	grpcServer *grpc.Server
}

// New creates a gRPC server backed by authz.
func New(authz *authorizer.Authorizer, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{authz: authz, cfg: cfg, logger: logger}
	s.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(s.logCall))
	s.grpcServer.RegisterService(&ServiceDesc, s)
	return s
}

// Serve starts the gRPC server on the configured port. Blocks until stopped.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("server: listen on port %d: %w", s.cfg.Port, err)
	}
	return s.ServeOn(lis)
}

// ServeOn starts the gRPC server on the given listener.
func (s *Server) ServeOn(lis net.Listener) error {
	s.logger.Info("actiongate server listening", zap.String("addr", lis.Addr().String()))
	return s.grpcServer.Serve(lis)
}

// GracefulStop gracefully shuts down the gRPC server.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
	s.logger.Info("actiongate server stopped")
}

// Authorize implements the Authorize RPC.
func (s *Server) Authorize(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req AuthorizeRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	d := s.authz.Authorize(ctx, authorizer.Request{
		Actor:          resolveActor(req.Actor),
		Action:         req.Action,
		Target:         req.Target,
		Context:        req.Context,
		ForceGateRerun: req.ForceGateRerun,
	})
	return reply(d)
}

// AuthorizeBatch implements the AuthorizeBatch RPC.
func (s *Server) AuthorizeBatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req AuthorizeBatchRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return reply(s.authz.AuthorizeBatch(ctx, resolveActor(req.Actor), req.Items, req.ForceGateRerun))
}

// GateStatus implements the GateStatus RPC.
func (s *Server) GateStatus(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return reply(s.authz.GateStatus())
}

// SaveAuditLog implements the SaveAuditLog RPC. A caller-supplied path must
// lie in the directory of the configured flush path.
func (s *Server) SaveAuditLog(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SaveAuditLogRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if s.cfg.FlushPath == "" {
		return nil, status.Error(codes.FailedPrecondition, "no audit flush path configured")
	}
	path := s.cfg.FlushPath
	if req.Path != "" {
		if !withinDir(filepath.Dir(s.cfg.FlushPath), req.Path) {
			return nil, status.Errorf(codes.PermissionDenied, "audit path %q is outside the audit directory", req.Path)
		}
		path = req.Path
	}
	if err := s.authz.SaveAuditLog(path); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return reply(SaveAuditLogResponse{Path: path, Buffered: s.authz.Log().Len()})
}

// withinDir reports whether p resolves to a file inside dir.
func withinDir(dir, p string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func reply(v any) (*structpb.Struct, error) {
	out, err := ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// resolveActor classifies actors that arrive with a name but no type.
func resolveActor(a model.Actor) model.Actor {
	if a.Type != "" || a.Name == "" {
		return a
	}
	return policy.NewActor(a.Name, a.Metadata)
}

func (s *Server) logCall(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("rpc",
		zap.String("method", info.FullMethod),
		zap.Duration("duration", time.Since(start)),
		zap.String("code", status.Code(err).String()))
	return resp, err
}
