// Package policy holds the static tables the authorizer reasons with:
// protected path patterns, capability sets, actor classification rules,
// and risk-flag heuristics. Nothing here is configurable at runtime.
package policy

import (
	"path"
	"slices"
	"strings"

	"github.com/ppiankov/actiongate/internal/model"
)

// ProtectedPattern is one entry of the protected-path table.
// Pattern syntax (case-insensitive):
//
//	*x*      contains x (matched against "/"+path)
//	*x       suffix x
//	x/*      x or anything under x/, at any directory level
//	x        a path, or a path ending in /x
//
// Prefix and exact patterns are anchored at every directory boundary, so
// "/work/repo/.github/workflows/ci.yml" matches ".github/workflows/*".
type ProtectedPattern struct {
	Pattern string
	Reason  string
}

// ProtectedPaths lists version-control internals, CI definitions, the control
// plane's own source, security policy files, and credential stores.
var ProtectedPaths = []ProtectedPattern{
	{".git/*", "version control internals"},
	{".github/workflows/*", "ci workflow definition"},
	{".gitlab-ci.yml", "ci workflow definition"},
	{"jenkinsfile", "ci workflow definition"},
	{"policies/*", "security policy"},
	{"security/*", "security policy"},
	{"*constitution.yaml", "constitution manifest"},
	{"*constitution.json", "constitution manifest"},
	{"cmd/actiongate/*", "control plane source"},
	{"internal/authorizer/*", "control plane source"},
	{"internal/constitution/*", "control plane source"},
	{"internal/policy/*", "control plane source"},
	{"internal/gate/*", "control plane source"},
	{"secrets/*", "credential store"},
	{"*/.env*", "credential store"},
	{"*credentials*", "credential store"},
	{"*id_rsa*", "credential store"},
}

// privilegedOnly are the actions only the privileged agent may run directly.
var privilegedOnly = []model.ActionKind{
	model.GitCommit,
	model.GitPush,
	model.PromoteToRepo,
	model.ModifyProtectedPath,
	model.ApplyPolicyOverride,
	model.DeployProd,
	model.Release,
}

// gateRequired are the actions that need a passing validation gate result.
var gateRequired = []model.ActionKind{
	model.GitCommit,
	model.GitPush,
	model.PromoteToRepo,
}

// overrideActions let the privileged agent touch protected paths.
var overrideActions = []model.ActionKind{
	model.ModifyProtectedPath,
	model.ApplyPolicyOverride,
}

// IsPrivilegedOnly reports whether k may only be run directly by the privileged agent.
func IsPrivilegedOnly(k model.ActionKind) bool {
	return slices.Contains(privilegedOnly, k)
}

// RequiresGate reports whether k depends on a passing gate result.
func RequiresGate(k model.ActionKind) bool {
	return slices.Contains(gateRequired, k)
}

// IsOverride reports whether k is an explicit protected-path override action.
func IsOverride(k model.ActionKind) bool {
	return slices.Contains(overrideActions, k)
}

// PrivilegedOnlyActions returns a copy of the privileged-only set.
func PrivilegedOnlyActions() []model.ActionKind {
	return slices.Clone(privilegedOnly)
}

// NormalizePath cleans p, converts separators, strips leading "./" and "/",
// and lower-cases it for matching.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimPrefix(p, "./")
	return strings.ToLower(p)
}

// MatchProtected returns the first protected pattern matching p.
func MatchProtected(p string) (ProtectedPattern, bool) {
	norm := NormalizePath(p)
	for _, rule := range ProtectedPaths {
		if matchPattern(strings.ToLower(rule.Pattern), norm) {
			return rule, true
		}
	}
	return ProtectedPattern{}, false
}

// IsProtected reports whether p matches any protected pattern.
func IsProtected(p string) bool {
	_, ok := MatchProtected(p)
	return ok
}

func matchPattern(pattern, norm string) bool {
	// *x* contains
	if len(pattern) > 1 && strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") {
		inner := pattern[1 : len(pattern)-1]
		return strings.Contains("/"+norm, inner)
	}

	// *x suffix
	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(norm, pattern[1:])
	}

	for tail := norm; ; {
		if matchAnchored(pattern, tail) {
			return true
		}
		i := strings.IndexByte(tail, '/')
		if i < 0 {
			return false
		}
		tail = tail[i+1:]
	}
}

func matchAnchored(pattern, p string) bool {
	// x/* prefix
	if dir, ok := strings.CutSuffix(pattern, "/*"); ok {
		return p == dir || strings.HasPrefix(p, dir+"/")
	}
	return p == pattern
}
