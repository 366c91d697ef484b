package client

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/ppiankov/actiongate/internal/authorizer"
	"github.com/ppiankov/actiongate/internal/constitution"
	"github.com/ppiankov/actiongate/internal/gate"
	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/server"
)

// startTestServer serves a fresh authorizer over bufconn and returns a
// connected client.
func startTestServer(t *testing.T, cfg server.Config) (*Client, *authorizer.Authorizer) {
	t.Helper()

	c, err := constitution.Parse([]byte(constitution.DefaultManifestYAML()))
	if err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	authz, err := authorizer.New(authorizer.Options{
		Constitution: constitution.NewStore(c, nil),
		Gate: authorizer.GateRunnerFunc(func() gate.Result {
			return gate.Result{Passed: false, PassRate: 50, Total: 2, PassedChecks: 1, Error: gate.ErrBelowThreshold, FailedPhases: []string{"lint"}}
		}),
	})
	if err != nil {
		t.Fatalf("authorizer.New: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	srv := server.New(authz, cfg, nil)
	go srv.ServeOn(lis)

	cl, err := New("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		srv.GracefulStop()
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		cl.Close()
		srv.GracefulStop()
	})
	return cl, authz
}

func TestClientAuthorize(t *testing.T) {
	cl, _ := startTestServer(t, server.Config{})

	d := cl.Authorize(context.Background(), server.AuthorizeRequest{
		Actor:  model.Actor{Type: model.EditorCLI, Name: "vscode"},
		Action: model.Query,
		Target: model.Resource{Kind: model.KindRepo, Path: "."},
	})
	if d.Mode != model.Allow || d.Reason != authorizer.ReasonReversible {
		t.Errorf("expected reversible allow, got %s %q", d.Mode, d.Reason)
	}
}

func TestClientAuthorizeGateFailed(t *testing.T) {
	cl, _ := startTestServer(t, server.Config{})

	d := cl.Authorize(context.Background(), server.AuthorizeRequest{
		Actor:  model.Actor{Type: model.AutomatedAgent, Name: "orchestrator"},
		Action: model.GitCommit,
		Target: model.Resource{Kind: model.KindRepo, Path: "."},
	})
	if d.Mode != model.Hold || d.Reason != authorizer.ReasonGateFailed {
		t.Fatalf("expected gate failed hold, got %s %q", d.Mode, d.Reason)
	}
	if d.RequiredActions[0] != model.ActionCreateSnapshot {
		t.Errorf("expected CREATE_SNAPSHOT first, got %v", d.RequiredActions)
	}
	if d.Metadata[authorizer.MetaGateError] != gate.ErrBelowThreshold {
		t.Errorf("unexpected metadata %v", d.Metadata)
	}
}

func TestClientAuthorizeBatch(t *testing.T) {
	cl, _ := startTestServer(t, server.Config{})

	res := cl.AuthorizeBatch(context.Background(), server.AuthorizeBatchRequest{
		Actor: model.Actor{Type: model.APIClient, Name: "sdk"},
		Items: []authorizer.BatchItem{
			{Action: model.List, Target: model.Resource{Path: "."}},
			{Action: model.CreateSnapshot, Target: model.Resource{Kind: model.KindSnapshot, Path: "snap-1"}},
		},
	})
	if !res.AllAllowed || len(res.Results) != 2 {
		t.Errorf("expected all allowed, got %+v", res)
	}
}

func TestClientGateStatus(t *testing.T) {
	cl, authz := startTestServer(t, server.Config{})
	authz.RunGate(context.Background())

	st, err := cl.GateStatus(context.Background())
	if err != nil {
		t.Fatalf("GateStatus: %v", err)
	}
	if st.Status != authorizer.GateFailed || st.Passed || st.Error != gate.ErrBelowThreshold {
		t.Errorf("unexpected status %+v", st)
	}
	if len(st.FailedPhases) != 1 || st.FailedPhases[0] != "lint" {
		t.Errorf("unexpected failed phases %v", st.FailedPhases)
	}
}

func TestClientSaveAuditLog(t *testing.T) {
	flush := filepath.Join(t.TempDir(), "decisions.jsonl")
	cl, _ := startTestServer(t, server.Config{FlushPath: flush})

	cl.Authorize(context.Background(), server.AuthorizeRequest{
		Actor: model.Actor{Type: model.WebUI}, Action: model.ReadFile, Target: model.Resource{Path: "a"},
	})
	resp, err := cl.SaveAuditLog(context.Background(), "")
	if err != nil {
		t.Fatalf("SaveAuditLog: %v", err)
	}
	if resp.Path != flush || resp.Buffered != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestClientFailClosed(t *testing.T) {
	lis := bufconn.Listen(1 << 10)
	lis.Close()

	cl, err := New("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d := cl.Authorize(ctx, server.AuthorizeRequest{
		Actor: model.Actor{Type: model.WebUI}, Action: model.ReadFile, Target: model.Resource{Path: "a"},
	})
	if d.Mode != model.Deny || d.Allowed || !strings.HasPrefix(d.Reason, ReasonUnreachable) {
		t.Errorf("expected fail-closed deny, got %s %q", d.Mode, d.Reason)
	}

	res := cl.AuthorizeBatch(ctx, server.AuthorizeBatchRequest{
		Actor: model.Actor{Type: model.WebUI},
		Items: []authorizer.BatchItem{{Action: model.ReadFile, Target: model.Resource{Path: "a"}}},
	})
	if res.AllAllowed || len(res.Results) != 1 || res.Results[0].Mode != model.Deny {
		t.Errorf("expected fail-closed batch, got %+v", res)
	}

	if _, err := cl.GateStatus(ctx); err == nil {
		t.Error("expected GateStatus error")
	}
}
