package model

import (
	"maps"
	"slices"
)

// ActorType classifies who is asking to perform an action.
type ActorType string

const (
	AutomatedAgent ActorType = "automated_agent"
	PersonaAgent   ActorType = "persona_agent"
	EditorCLI      ActorType = "editor_cli"
	TerminalCLI    ActorType = "terminal_cli"
	WebUI          ActorType = "web_ui"
	APIClient      ActorType = "api_client"
	UnknownActor   ActorType = "unknown"
)

// PrivilegedActor is the only actor type allowed to run privileged actions directly.
const PrivilegedActor = AutomatedAgent

var actorTypes = []ActorType{
	AutomatedAgent, PersonaAgent, EditorCLI, TerminalCLI, WebUI, APIClient, UnknownActor,
}

// Valid reports whether t is a member of the closed ActorType set.
func (t ActorType) Valid() bool {
	return slices.Contains(actorTypes, t)
}

// Actor is the ephemeral, per-request identity of a caller.
type Actor struct {
	Type     ActorType         `json:"type"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Privileged reports whether the actor may run privileged-only actions.
func (a Actor) Privileged() bool {
	return a.Type == PrivilegedActor
}

// ActionKind is the closed set of operations the authorizer reasons about.
type ActionKind string

const (
	// File mutations.
	WriteFile  ActionKind = "write_file"
	DeleteFile ActionKind = "delete_file"
	CreateDir  ActionKind = "create_dir"

	// VCS operations.
	GitCommit    ActionKind = "git_commit"
	GitPush      ActionKind = "git_push"
	GitPull      ActionKind = "git_pull"
	GitMerge     ActionKind = "git_merge"
	GitRebase    ActionKind = "git_rebase"
	GitReset     ActionKind = "git_reset"
	CreateBranch ActionKind = "create_branch"
	DeleteBranch ActionKind = "delete_branch"

	// Snapshot operations.
	CreateSnapshot  ActionKind = "create_snapshot"
	PromoteToRepo   ActionKind = "promote_to_repo"
	RestoreSnapshot ActionKind = "restore_snapshot"

	// Policy operations.
	ApplyPolicyOverride ActionKind = "apply_policy_override"
	ModifyProtectedPath ActionKind = "modify_protected_path"

	// Pipeline operations.
	RunPipeline ActionKind = "run_pipeline"
	DeployProd  ActionKind = "deploy_prod"
	Release     ActionKind = "release"

	// Read-only operations.
	ReadFile ActionKind = "read_file"
	Query    ActionKind = "query"
	List     ActionKind = "list"
)

// actionKinds tags every known kind as irreversible (true) or reversible (false).
var actionKinds = map[ActionKind]bool{
	WriteFile:           true,
	DeleteFile:          true,
	CreateDir:           true,
	GitCommit:           true,
	GitPush:             true,
	GitPull:             true,
	GitMerge:            true,
	GitRebase:           true,
	GitReset:            true,
	CreateBranch:        false,
	DeleteBranch:        true,
	CreateSnapshot:      false,
	PromoteToRepo:       true,
	RestoreSnapshot:     true,
	ApplyPolicyOverride: true,
	ModifyProtectedPath: true,
	RunPipeline:         true,
	DeployProd:          true,
	Release:             true,
	ReadFile:            false,
	Query:               false,
	List:                false,
}

// Valid reports whether k is a member of the closed ActionKind set.
func (k ActionKind) Valid() bool {
	_, ok := actionKinds[k]
	return ok
}

// Irreversible reports whether k is statically tagged irreversible.
// Unknown kinds are not irreversible; callers must check Valid first.
func (k ActionKind) Irreversible() bool {
	return actionKinds[k]
}

// ActionKinds returns every known kind in sorted order.
func ActionKinds() []ActionKind {
	return slices.Sorted(maps.Keys(actionKinds))
}

// ResourceKind is the type of an action's target.
type ResourceKind string

const (
	KindFile     ResourceKind = "file"
	KindDir      ResourceKind = "dir"
	KindRepo     ResourceKind = "repo"
	KindBranch   ResourceKind = "branch"
	KindSnapshot ResourceKind = "snapshot"
)

// Valid reports whether k is a known resource kind. The empty kind is accepted
// and means "unspecified".
func (k ResourceKind) Valid() bool {
	switch k {
	case "", KindFile, KindDir, KindRepo, KindBranch, KindSnapshot:
		return true
	}
	return false
}

// Resource is the target of an action. The authorizer never mutates it.
type Resource struct {
	Kind     ResourceKind      `json:"kind"`
	Path     string            `json:"path"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Mode is the outcome class of an authorization decision.
type Mode string

const (
	Allow Mode = "allow"
	Deny  Mode = "deny"
	Hold  Mode = "hold"

	// Escalate is reserved for manual-review routing. No decision path
	// produces it yet.
	Escalate Mode = "escalate"
)

// RiskFlag is a heuristic signal attached to audit events for later analysis.
type RiskFlag string

const (
	RiskPolicyTouched           RiskFlag = "POLICY_TOUCHED"
	RiskCIPipeline              RiskFlag = "CI_PIPELINE"
	RiskProtectedPath           RiskFlag = "PROTECTED_PATH"
	RiskMainBranch              RiskFlag = "MAIN_BRANCH"
	RiskProdEnv                 RiskFlag = "PROD_ENV"
	RiskDestructive             RiskFlag = "DESTRUCTIVE"
	RiskBulkChange              RiskFlag = "BULK_CHANGE"
	RiskNewDependency           RiskFlag = "NEW_DEPENDENCY"
	RiskConstitutionalViolation RiskFlag = "CONSTITUTIONAL_VIOLATION"
)

// Required follow-up actions attached to non-allow decisions.
const (
	ActionCreateSnapshot         = "CREATE_SNAPSHOT"
	ActionRequestHumanReview     = "REQUEST_HUMAN_REVIEW"
	ActionRequestPrivilegedAgent = "REQUEST_PRIVILEGED_AGENT"
	ActionRerunGate              = "RERUN_GATE"
)

// Decision is the authorizer's answer to a single request.
// Allowed is true exactly when Mode is Allow.
type Decision struct {
	Allowed         bool              `json:"allowed"`
	Mode            Mode              `json:"mode"`
	Reason          string            `json:"reason"`
	RequiredActions []string          `json:"required_actions,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	AuditEvent      AuditEvent        `json:"audit_event"`
}

// NewDecision builds a Decision whose Allowed field agrees with mode.
// A hold always carries CREATE_SNAPSHOT as its first required action.
func NewDecision(mode Mode, reason string, required ...string) Decision {
	if mode == Hold && !slices.Contains(required, ActionCreateSnapshot) {
		required = append([]string{ActionCreateSnapshot}, required...)
	}
	return Decision{
		Allowed:         mode == Allow,
		Mode:            mode,
		Reason:          reason,
		RequiredActions: required,
	}
}
