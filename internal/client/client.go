package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/actiongate/internal/authorizer"
	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/server"
)

// ReasonUnreachable prefixes the reason of decisions made locally because the
// server could not answer.
const ReasonUnreachable = "actiongate server unreachable: "

// statusTimeout bounds the RPCs that never wait on a gate run.
const statusTimeout = 5 * time.Second

// Client connects to an actiongate gRPC server.
type Client struct {
	conn *grpc.ClientConn
}

// New creates a gRPC client for addr. Extra dial options are appended after
// the default insecure transport.
func New(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("client: connect to %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Authorize asks the server to decide req. ctx bounds the whole call,
// including any wait for a gate run. Fail-closed: any RPC error yields a Deny
// decision that carries no audit event, since the server never saw it.
func (c *Client) Authorize(ctx context.Context, req server.AuthorizeRequest) model.Decision {
	var d model.Decision
	if err := c.invoke(ctx, server.MethodAuthorize, req, &d); err != nil {
		return unreachable(err)
	}
	return d
}

// AuthorizeBatch asks the server to decide every item. Fail-closed like Authorize.
func (c *Client) AuthorizeBatch(ctx context.Context, req server.AuthorizeBatchRequest) authorizer.BatchResult {
	var res authorizer.BatchResult
	if err := c.invoke(ctx, server.MethodAuthorizeBatch, req, &res); err != nil {
		results := make([]model.Decision, len(req.Items))
		for i := range results {
			results[i] = unreachable(err)
		}
		return authorizer.BatchResult{Results: results}
	}
	return res
}

// GateStatus returns the server's cached gate result.
func (c *Client) GateStatus(ctx context.Context) (authorizer.GateStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	var st authorizer.GateStatus
	err := c.invoke(ctx, server.MethodGateStatus, struct{}{}, &st)
	return st, err
}

// SaveAuditLog asks the server to flush its audit log. An empty path uses the
// server's configured flush path.
func (c *Client) SaveAuditLog(ctx context.Context, path string) (server.SaveAuditLogResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	var resp server.SaveAuditLogResponse
	err := c.invoke(ctx, server.MethodSaveAuditLog, server.SaveAuditLogRequest{Path: path}, &resp)
	return resp, err
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	in, err := server.ToStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return fmt.Errorf("client: %s: %w", method, err)
	}
	return server.FromStruct(out, resp)
}

func unreachable(err error) model.Decision {
	d := model.NewDecision(model.Deny, ReasonUnreachable+err.Error())
	d.Metadata = map[string]string{}
	return d
}
