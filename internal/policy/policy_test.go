package policy

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/actiongate/internal/model"
)

func TestMatchProtected(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{".git/config", true},
		{".git", true},
		{"./.git/HEAD", true},
		{"vendor/lib/.git/config", true},
		{".github/workflows/ci.yml", true},
		{".gitlab-ci.yml", true},
		{"policies/gate.yaml", true},
		{"policies", true},
		{"Policies/Gate.yaml", true},
		{"security/rbac.yaml", true},
		{"secrets/db.txt", true},
		{".env", true},
		{"config/.env.local", true},
		{"home/user/.aws/credentials", true},
		{"keys/id_rsa.pub", true},
		{"deploy/constitution.yaml", true},
		{"internal/authorizer/authorizer.go", true},
		{"cmd/actiongate/main.go", true},
		{"/work/repo/.github/workflows/ci.yml", true},
		{"/work/repo/policies/gate.yaml", true},
		{"/srv/app/secrets/db.key", true},
		{"/work/repo/.git/config", true},
		{"/work/repo/internal/gate/runner.go", true},
		{"services/api/.gitlab-ci.yml", true},
		{"/work/repo/src/app.py", false},
		{"docs/policies.md", false},
		{"src/app.py", false},
		{".", false},
		{"policy.md", false},
		{"docs/security.md", false},
		{".gitignore", false},
		{"environment.go", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsProtected(tt.path); got != tt.want {
				t.Errorf("IsProtected(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestMatchProtectedReturnsReason(t *testing.T) {
	rule, ok := MatchProtected(".github/workflows/release.yml")
	if !ok {
		t.Fatal("expected match")
	}
	if rule.Reason != "ci workflow definition" {
		t.Errorf("unexpected reason %q", rule.Reason)
	}
}

func TestCapabilitySets(t *testing.T) {
	want := []model.ActionKind{
		model.GitCommit, model.GitPush, model.PromoteToRepo, model.ModifyProtectedPath,
		model.ApplyPolicyOverride, model.DeployProd, model.Release,
	}
	if diff := cmp.Diff(want, PrivilegedOnlyActions()); diff != "" {
		t.Errorf("privileged-only set mismatch (-want +got):\n%s", diff)
	}
	for _, k := range want {
		if !k.Irreversible() {
			t.Errorf("privileged-only action %s must be irreversible", k)
		}
	}

	for _, k := range []model.ActionKind{model.GitCommit, model.GitPush, model.PromoteToRepo} {
		if !RequiresGate(k) {
			t.Errorf("%s should require gate", k)
		}
	}
	if RequiresGate(model.DeployProd) {
		t.Error("deploy_prod should not require gate")
	}
	if !IsOverride(model.ModifyProtectedPath) || IsOverride(model.WriteFile) {
		t.Error("override set mismatch")
	}
}

func TestClassifyOrder(t *testing.T) {
	tests := []struct {
		label string
		want  model.ActorType
	}{
		{"automated-agent", model.AutomatedAgent},
		{"Autonomous Orchestrator", model.AutomatedAgent},
		{"research-assistant", model.PersonaAgent},
		{"persona:reviewer", model.PersonaAgent},
		{"vscode-extension", model.EditorCLI},
		{"agent in vscode", model.PersonaAgent},
		{"automated vim macro", model.AutomatedAgent},
		{"zsh", model.TerminalCLI},
		{"terminal", model.TerminalCLI},
		{"web-dashboard", model.WebUI},
		{"rest-api", model.APIClient},
		{"api-client", model.APIClient},
		{"grpc client", model.APIClient},
		{"http-client", model.APIClient},
		{"sdk-client", model.APIClient},
		{"grpc-caller", model.APIClient},
		{"gh-cli", model.TerminalCLI},
		{"system_agent", model.AutomatedAgent},
		{"system agent", model.AutomatedAgent},
		{"ci-build-runner", model.UnknownActor},
		{"provider-gateway", model.UnknownActor},
		{"mybot", model.UnknownActor},
		{"", model.UnknownActor},
		{"mystery", model.UnknownActor},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := Classify(tt.label); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.label, got, tt.want)
			}
		})
	}
}

func TestNewActorCopiesMetadata(t *testing.T) {
	md := map[string]string{"session": "s1"}
	a := NewActor("bash", md)
	md["session"] = "s2"

	if a.Type != model.TerminalCLI {
		t.Errorf("expected terminal_cli, got %s", a.Type)
	}
	if a.Metadata["session"] != "s1" {
		t.Errorf("metadata aliased request map: %v", a.Metadata)
	}
}

func TestRiskFlags(t *testing.T) {
	tests := []struct {
		name   string
		action model.ActionKind
		target model.Resource
		ctx    map[string]string
		want   []model.RiskFlag
	}{
		{
			name:   "plain source edit",
			action: model.WriteFile,
			target: model.Resource{Kind: model.KindFile, Path: "src/app.py"},
		},
		{
			name:   "policy file",
			action: model.WriteFile,
			target: model.Resource{Kind: model.KindFile, Path: "policies/gate.yaml"},
			want:   []model.RiskFlag{model.RiskPolicyTouched, model.RiskProtectedPath},
		},
		{
			name:   "workflow",
			action: model.WriteFile,
			target: model.Resource{Path: ".github/workflows/ci.yml"},
			want:   []model.RiskFlag{model.RiskCIPipeline, model.RiskProtectedPath},
		},
		{
			name:   "force push to main",
			action: model.GitPush,
			target: model.Resource{Kind: model.KindRepo, Path: "."},
			ctx:    map[string]string{"branch": "refs/heads/main", "force": "true"},
			want:   []model.RiskFlag{model.RiskMainBranch, model.RiskDestructive},
		},
		{
			name:   "prod deploy",
			action: model.DeployProd,
			target: model.Resource{Path: "."},
			want:   []model.RiskFlag{model.RiskProdEnv},
		},
		{
			name:   "bulk dependency change",
			action: model.WriteFile,
			target: model.Resource{Path: "go.mod"},
			ctx:    map[string]string{"files_changed": "120"},
			want:   []model.RiskFlag{model.RiskBulkChange, model.RiskNewDependency},
		},
		{
			name:   "delete branch",
			action: model.DeleteBranch,
			target: model.Resource{Kind: model.KindBranch, Path: "master"},
			want:   []model.RiskFlag{model.RiskMainBranch, model.RiskDestructive},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RiskFlags(tt.action, tt.target, tt.ctx)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("flags mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
