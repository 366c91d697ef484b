package server

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/actiongate/internal/authorizer"
	"github.com/ppiankov/actiongate/internal/model"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "actiongate.v1.ActionGate"

// Full method names.
const (
	MethodAuthorize      = "/" + ServiceName + "/Authorize"
	MethodAuthorizeBatch = "/" + ServiceName + "/AuthorizeBatch"
	MethodGateStatus     = "/" + ServiceName + "/GateStatus"
	MethodSaveAuditLog   = "/" + ServiceName + "/SaveAuditLog"
)

// Every RPC carries a google.protobuf.Struct holding the JSON form of the
// types below.

// AuthorizeRequest is the body of Authorize. An actor with an empty type is
// classified from its name.
type AuthorizeRequest struct {
	Actor          model.Actor       `json:"actor"`
	Action         model.ActionKind  `json:"action"`
	Target         model.Resource    `json:"target"`
	Context        map[string]string `json:"context,omitempty"`
	ForceGateRerun bool              `json:"force_gate_rerun,omitempty"`
}

// AuthorizeBatchRequest is the body of AuthorizeBatch.
type AuthorizeBatchRequest struct {
	Actor          model.Actor            `json:"actor"`
	Items          []authorizer.BatchItem `json:"items"`
	ForceGateRerun bool                   `json:"force_gate_rerun,omitempty"`
}

// SaveAuditLogRequest is the body of SaveAuditLog. An empty path means the
// server's configured flush path; any other path must sit next to it.
type SaveAuditLogRequest struct {
	Path string `json:"path,omitempty"`
}

// SaveAuditLogResponse reports where the log was written.
type SaveAuditLogResponse struct {
	Path     string `json:"path"`
	Buffered int    `json:"buffered"`
}

// ToStruct converts v to a Struct through its JSON form.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("server: encode message: %w", err)
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("server: encode message: %w", err)
	}
	return s, nil
}

// FromStruct decodes s into v through its JSON form. A nil s leaves v unchanged.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("server: decode message: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("server: decode message: %w", err)
	}
	return nil
}

// ActionGateServer is the server side of the ActionGate service.
type ActionGateServer interface {
	Authorize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AuthorizeBatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GateStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SaveAuditLog(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryFunc func(ActionGateServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryFunc) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(ActionGateServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc describes the ActionGate service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ActionGateServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Authorize", ActionGateServer.Authorize),
		unary("AuthorizeBatch", ActionGateServer.AuthorizeBatch),
		unary("GateStatus", ActionGateServer.GateStatus),
		unary("SaveAuditLog", ActionGateServer.SaveAuditLog),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "actiongate/v1/actiongate.proto",
}
