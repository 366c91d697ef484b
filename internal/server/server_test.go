package server

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/actiongate/internal/audit"
	"github.com/ppiankov/actiongate/internal/authorizer"
	"github.com/ppiankov/actiongate/internal/constitution"
	"github.com/ppiankov/actiongate/internal/gate"
	"github.com/ppiankov/actiongate/internal/model"
)

func testAuthorizer(t *testing.T) *authorizer.Authorizer {
	t.Helper()
	c, err := constitution.Parse([]byte(constitution.DefaultManifestYAML()))
	if err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	a, err := authorizer.New(authorizer.Options{
		Constitution: constitution.NewStore(c, nil),
		Gate: authorizer.GateRunnerFunc(func() gate.Result {
			return gate.Result{Passed: true, PassRate: 100, Total: 3, PassedChecks: 3, RunID: "r1", FailedPhases: []string{}}
		}),
	})
	if err != nil {
		t.Fatalf("authorizer.New: %v", err)
	}
	return a
}

// testServer serves authz over an in-memory listener and returns a client conn.
func testServer(t *testing.T, authz *authorizer.Authorizer, cfg Config) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := New(authz, cfg, nil)
	go srv.ServeOn(lis)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		srv.GracefulStop()
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		srv.GracefulStop()
	})
	return conn
}

func call(t *testing.T, conn *grpc.ClientConn, method string, req, resp any) error {
	t.Helper()
	in, err := ToStruct(req)
	if err != nil {
		t.Fatalf("ToStruct: %v", err)
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(context.Background(), method, in, out); err != nil {
		return err
	}
	if err := FromStruct(out, resp); err != nil {
		t.Fatalf("FromStruct: %v", err)
	}
	return nil
}

func TestAuthorizeRPC(t *testing.T) {
	conn := testServer(t, testAuthorizer(t), Config{})

	tests := []struct {
		name   string
		req    AuthorizeRequest
		mode   model.Mode
		reason string
	}{
		{
			name:   "reversible read",
			req:    AuthorizeRequest{Actor: model.Actor{Type: model.WebUI, Name: "ui"}, Action: model.ReadFile, Target: model.Resource{Kind: model.KindFile, Path: "README.md"}},
			mode:   model.Allow,
			reason: authorizer.ReasonReversible,
		},
		{
			name:   "terminal push",
			req:    AuthorizeRequest{Actor: model.Actor{Type: model.TerminalCLI, Name: "zsh"}, Action: model.GitPush, Target: model.Resource{Kind: model.KindFile, Path: "src/app.py"}},
			mode:   model.Hold,
			reason: authorizer.ReasonPrivilegedOnly,
		},
		{
			name:   "privileged commit",
			req:    AuthorizeRequest{Actor: model.Actor{Type: model.AutomatedAgent, Name: "orchestrator"}, Action: model.GitCommit, Target: model.Resource{Kind: model.KindRepo, Path: "."}},
			mode:   model.Allow,
			reason: authorizer.ReasonGatePassed,
		},
		{
			name:   "classified from name",
			req:    AuthorizeRequest{Actor: model.Actor{Name: "autonomous-runner"}, Action: model.GitPush, Target: model.Resource{Kind: model.KindFile, Path: "src/app.py"}},
			mode:   model.Allow,
			reason: authorizer.ReasonGatePassed,
		},
		{
			name:   "unknown action",
			req:    AuthorizeRequest{Actor: model.Actor{Type: model.AutomatedAgent}, Action: "teleport", Target: model.Resource{Path: "x"}},
			mode:   model.Deny,
			reason: "invalid_request: unknown action kind \"teleport\"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d model.Decision
			if err := call(t, conn, MethodAuthorize, tt.req, &d); err != nil {
				t.Fatalf("Authorize: %v", err)
			}
			if d.Mode != tt.mode || d.Reason != tt.reason {
				t.Errorf("expected %s %q, got %s %q", tt.mode, tt.reason, d.Mode, d.Reason)
			}
			if d.Allowed != (d.Mode == model.Allow) {
				t.Errorf("allowed=%v disagrees with mode %s", d.Allowed, d.Mode)
			}
			if d.AuditEvent.ID == "" || d.AuditEvent.ConstitutionHash == "" {
				t.Errorf("audit event not returned: %+v", d.AuditEvent)
			}
		})
	}
}

func TestAuthorizeBatchRPC(t *testing.T) {
	conn := testServer(t, testAuthorizer(t), Config{})

	req := AuthorizeBatchRequest{
		Actor: model.Actor{Type: model.EditorCLI, Name: "vscode"},
		Items: []authorizer.BatchItem{
			{Action: model.ReadFile, Target: model.Resource{Kind: model.KindFile, Path: "a.go"}},
			{Action: model.WriteFile, Target: model.Resource{Kind: model.KindFile, Path: ".github/workflows/ci.yml"}},
		},
	}
	var res authorizer.BatchResult
	if err := call(t, conn, MethodAuthorizeBatch, req, &res); err != nil {
		t.Fatalf("AuthorizeBatch: %v", err)
	}
	if res.AllAllowed || len(res.Results) != 2 {
		t.Fatalf("unexpected batch result %+v", res)
	}
	if res.Results[0].Mode != model.Allow || res.Results[1].Mode != model.Hold {
		t.Errorf("unexpected modes %s, %s", res.Results[0].Mode, res.Results[1].Mode)
	}
}

func TestGateStatusRPC(t *testing.T) {
	authz := testAuthorizer(t)
	conn := testServer(t, authz, Config{})

	var st authorizer.GateStatus
	if err := call(t, conn, MethodGateStatus, struct{}{}, &st); err != nil {
		t.Fatalf("GateStatus: %v", err)
	}
	if st.Status != authorizer.GateNeverRun {
		t.Errorf("expected never_run, got %s", st.Status)
	}

	authz.RunGate(context.Background())
	if err := call(t, conn, MethodGateStatus, struct{}{}, &st); err != nil {
		t.Fatalf("GateStatus: %v", err)
	}
	if st.Status != authorizer.GatePassed || st.PassRate != 100 || st.RunID != "r1" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestSaveAuditLogRPC(t *testing.T) {
	authz := testAuthorizer(t)
	flush := filepath.Join(t.TempDir(), "decisions.jsonl")
	conn := testServer(t, authz, Config{FlushPath: flush})

	var d model.Decision
	call(t, conn, MethodAuthorize, AuthorizeRequest{
		Actor: model.Actor{Type: model.WebUI}, Action: model.List, Target: model.Resource{Path: "."},
	}, &d)

	var resp SaveAuditLogResponse
	if err := call(t, conn, MethodSaveAuditLog, SaveAuditLogRequest{}, &resp); err != nil {
		t.Fatalf("SaveAuditLog: %v", err)
	}
	if resp.Path != flush || resp.Buffered != 1 {
		t.Errorf("unexpected response %+v", resp)
	}

	res, err := audit.Replay(flush, audit.ReplayFilter{})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(res.Events) != 1 || res.Events[0].ID != d.AuditEvent.ID {
		t.Errorf("flushed events do not match: %+v", res.Events)
	}
}

func TestSaveAuditLogRPCWithoutPath(t *testing.T) {
	conn := testServer(t, testAuthorizer(t), Config{})

	err := call(t, conn, MethodSaveAuditLog, SaveAuditLogRequest{}, &SaveAuditLogResponse{})
	if status.Code(err) != codes.FailedPrecondition {
		t.Errorf("expected FailedPrecondition, got %v", err)
	}
}

func TestSaveAuditLogRPCRestrictsPath(t *testing.T) {
	dir := t.TempDir()
	flush := filepath.Join(dir, "decisions.jsonl")
	conn := testServer(t, testAuthorizer(t), Config{FlushPath: flush})

	for _, p := range []string{
		filepath.Join(t.TempDir(), "elsewhere.jsonl"),
		filepath.Join(dir, "..", "escape.jsonl"),
		dir,
	} {
		err := call(t, conn, MethodSaveAuditLog, SaveAuditLogRequest{Path: p}, &SaveAuditLogResponse{})
		if status.Code(err) != codes.PermissionDenied {
			t.Errorf("path %q: expected PermissionDenied, got %v", p, err)
		}
	}

	var resp SaveAuditLogResponse
	other := filepath.Join(dir, "other.jsonl")
	if err := call(t, conn, MethodSaveAuditLog, SaveAuditLogRequest{Path: other}, &resp); err != nil {
		t.Fatalf("path inside the audit directory: %v", err)
	}
	if resp.Path != other {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestAuthorizeRPCRejectsMalformedBody(t *testing.T) {
	conn := testServer(t, testAuthorizer(t), Config{})

	in, _ := structpb.NewStruct(map[string]any{"actor": "not-an-object"})
	err := conn.Invoke(context.Background(), MethodAuthorize, in, new(structpb.Struct))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestConcurrentAuthorizeRPC(t *testing.T) {
	authz := testAuthorizer(t)
	conn := testServer(t, authz, Config{})

	in, err := ToStruct(AuthorizeRequest{
		Actor: model.Actor{Type: model.AutomatedAgent}, Action: model.GitCommit, Target: model.Resource{Path: "src/a.go"},
	})
	if err != nil {
		t.Fatal(err)
	}

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- conn.Invoke(context.Background(), MethodAuthorize, in, new(structpb.Struct))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent Authorize: %v", err)
		}
	}
	if authz.Log().Len() != n {
		t.Errorf("expected %d audit events, got %d", n, authz.Log().Len())
	}
}
