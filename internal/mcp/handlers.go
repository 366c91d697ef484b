package mcp

import (
	"context"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/actiongate/internal/authorizer"
	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/policy"
)

// --- Input/Output types ---

// AuthorizeInput defines parameters for the actiongate_authorize tool.
type AuthorizeInput struct {
	Action         string            `json:"action" jsonschema:"action kind, e.g. write_file, git_commit, git_push, read_file"`
	TargetKind     string            `json:"target_kind,omitempty" jsonschema:"resource kind: file, dir, repo, branch, snapshot"`
	Target         string            `json:"target" jsonschema:"path of the resource the action touches"`
	Context        map[string]string `json:"context,omitempty" jsonschema:"free-form request context, e.g. branch or env"`
	Actor          string            `json:"actor,omitempty" jsonschema:"caller label used for actor classification"`
	ForceGateRerun bool              `json:"force_gate_rerun,omitempty" jsonschema:"rerun the validation gate instead of using the cached result"`
}

// AuthorizeOutput contains the decision.
type AuthorizeOutput struct {
	Allowed         bool              `json:"allowed"`
	Mode            string            `json:"mode"`
	Reason          string            `json:"reason"`
	RequiredActions []string          `json:"required_actions,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	RiskFlags       []string          `json:"risk_flags,omitempty"`
	EventID         string            `json:"event_id"`
}

// BatchItemInput is one action of a batch.
type BatchItemInput struct {
	Action     string            `json:"action" jsonschema:"action kind"`
	TargetKind string            `json:"target_kind,omitempty" jsonschema:"resource kind"`
	Target     string            `json:"target" jsonschema:"resource path"`
	Context    map[string]string `json:"context,omitempty" jsonschema:"request context"`
}

// BatchInput defines parameters for the actiongate_authorize_batch tool.
type BatchInput struct {
	Items          []BatchItemInput `json:"items" jsonschema:"actions to authorize"`
	Actor          string           `json:"actor,omitempty" jsonschema:"caller label used for actor classification"`
	ForceGateRerun bool             `json:"force_gate_rerun,omitempty" jsonschema:"rerun the validation gate once for the whole batch"`
}

// BatchOutput contains one decision per item, in item order.
type BatchOutput struct {
	AllAllowed bool              `json:"all_allowed"`
	Results    []AuthorizeOutput `json:"results"`
}

// GateStatusInput defines parameters for the actiongate_gate_status tool.
type GateStatusInput struct {
	Rerun bool `json:"rerun,omitempty" jsonschema:"run the gate before reporting"`
}

// PendingInput is empty; no parameters needed.
type PendingInput struct{}

// PendingOutput lists the pending hold tickets.
type PendingOutput struct {
	Holds []PendingItem `json:"holds"`
}

// PendingItem describes one held action.
type PendingItem struct {
	Key             string   `json:"key"`
	Actor           string   `json:"actor"`
	Action          string   `json:"action"`
	Resource        string   `json:"resource"`
	Reason          string   `json:"reason"`
	RequiredActions []string `json:"required_actions,omitempty"`
	CreatedAt       string   `json:"created_at"`
}

// --- Handlers ---

func (s *Server) handleAuthorize(ctx context.Context, req *mcpsdk.CallToolRequest, input AuthorizeInput) (*mcpsdk.CallToolResult, AuthorizeOutput, error) {
	d := s.authz.Authorize(ctx, authorizer.Request{
		Actor:          s.actorFor(input.Actor),
		Action:         model.ActionKind(input.Action),
		Target:         model.Resource{Kind: model.ResourceKind(input.TargetKind), Path: input.Target},
		Context:        input.Context,
		ForceGateRerun: input.ForceGateRerun,
	})
	return nil, toOutput(d), nil
}

func (s *Server) handleAuthorizeBatch(ctx context.Context, req *mcpsdk.CallToolRequest, input BatchInput) (*mcpsdk.CallToolResult, BatchOutput, error) {
	items := make([]authorizer.BatchItem, len(input.Items))
	for i, it := range input.Items {
		items[i] = authorizer.BatchItem{
			Action:  model.ActionKind(it.Action),
			Target:  model.Resource{Kind: model.ResourceKind(it.TargetKind), Path: it.Target},
			Context: it.Context,
		}
	}

	res := s.authz.AuthorizeBatch(ctx, s.actorFor(input.Actor), items, input.ForceGateRerun)
	out := BatchOutput{AllAllowed: res.AllAllowed, Results: make([]AuthorizeOutput, len(res.Results))}
	for i, d := range res.Results {
		out.Results[i] = toOutput(d)
	}
	return nil, out, nil
}

func (s *Server) handleGateStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input GateStatusInput) (*mcpsdk.CallToolResult, authorizer.GateStatus, error) {
	if input.Rerun {
		if _, err := s.authz.RunGate(ctx); err != nil {
			return nil, authorizer.GateStatus{}, err
		}
	}
	return nil, s.authz.GateStatus(), nil
}

func (s *Server) handlePending(ctx context.Context, req *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	out := PendingOutput{Holds: []PendingItem{}}
	if s.holds == nil {
		return nil, out, nil
	}

	list, err := s.holds.Pending()
	if err != nil {
		return nil, PendingOutput{}, err
	}
	for _, t := range list {
		out.Holds = append(out.Holds, PendingItem{
			Key:             t.Key,
			Actor:           t.Actor,
			Action:          t.Action,
			Resource:        t.Resource,
			Reason:          t.Reason,
			RequiredActions: t.RequiredActions,
			CreatedAt:       t.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return nil, out, nil
}

// --- Helpers ---

// actorFor classifies a per-call label, falling back to the server's actor.
func (s *Server) actorFor(label string) model.Actor {
	if label == "" {
		return s.actor
	}
	return policy.NewActor(label, s.actor.Metadata)
}

func toOutput(d model.Decision) AuthorizeOutput {
	return AuthorizeOutput{
		Allowed:         d.Allowed,
		Mode:            string(d.Mode),
		Reason:          d.Reason,
		RequiredActions: d.RequiredActions,
		Metadata:        d.Metadata,
		RiskFlags:       d.AuditEvent.RiskFlags,
		EventID:         d.AuditEvent.ID,
	}
}
