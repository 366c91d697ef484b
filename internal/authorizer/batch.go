package authorizer

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/policy"
)

// batchConcurrency bounds how many items of one batch are decided at once.
const batchConcurrency = 8

// BatchItem is one action of a batch request.
type BatchItem struct {
	Action  model.ActionKind  `json:"action"`
	Target  model.Resource    `json:"target"`
	Context map[string]string `json:"context,omitempty"`
}

// BatchResult carries one decision per item, in item order.
type BatchResult struct {
	AllAllowed bool             `json:"all_allowed"`
	Results    []model.Decision `json:"results"`
}

// AuthorizeBatch decides every item for actor. It does not stop at the first
// blocked item, so the caller sees every blocking reason at once. Items share
// only the gate cache; forceGateRerun reruns the gate once for the whole
// batch. An empty batch is not AllAllowed.
func (a *Authorizer) AuthorizeBatch(ctx context.Context, actor model.Actor, items []BatchItem, forceGateRerun bool) BatchResult {
	results := make([]model.Decision, len(items))

	// A forced rerun happens once and every gate item is decided on its
	// outcome, including a cancelled wait.
	var pinned *gateOutcome
	if forceGateRerun && slices.ContainsFunc(items, func(it BatchItem) bool { return policy.RequiresGate(it.Action) }) {
		res, err := a.RunGate(ctx)
		pinned = &gateOutcome{res: res, err: err}
	}

	g := new(errgroup.Group)
	g.SetLimit(batchConcurrency)
	for i, item := range items {
		g.Go(func() error {
			results[i] = a.Authorize(ctx, Request{
				Actor:   actor,
				Action:  item.Action,
				Target:  item.Target,
				Context: item.Context,
				pinned:  pinned,
			})
			return nil
		})
	}
	_ = g.Wait()

	all := len(results) > 0
	for _, d := range results {
		if !d.Allowed {
			all = false
		}
	}
	return BatchResult{AllAllowed: all, Results: results}
}
