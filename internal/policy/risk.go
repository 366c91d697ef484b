package policy

import (
	"path"
	"strconv"
	"strings"

	"github.com/ppiankov/actiongate/internal/model"
)

// BulkChangeThreshold is the files_changed count at which a request is a bulk change.
const BulkChangeThreshold = 50

var dependencyManifests = []string{
	"go.mod", "go.sum", "package.json", "package-lock.json", "yarn.lock", "pnpm-lock.yaml",
	"requirements.txt", "pyproject.toml", "poetry.lock", "cargo.toml", "cargo.lock",
	"gemfile", "gemfile.lock", "pom.xml", "build.gradle",
}

var mainBranches = []string{"main", "master", "trunk", "production"}

// RiskFlags computes heuristic risk signals for a request from the target
// path and context fields. The result is informational only.
func RiskFlags(action model.ActionKind, target model.Resource, ctx map[string]string) []model.RiskFlag {
	var flags []model.RiskFlag
	add := func(f model.RiskFlag) { flags = append(flags, f) }

	norm := NormalizePath(target.Path)
	base := path.Base(norm)

	if strings.Contains(norm, "polic") || action == model.ApplyPolicyOverride {
		add(model.RiskPolicyTouched)
	}
	if isCIPath(norm) || action == model.RunPipeline {
		add(model.RiskCIPipeline)
	}
	if IsProtected(target.Path) || action == model.ModifyProtectedPath {
		add(model.RiskProtectedPath)
	}
	if isMainBranch(target, ctx) {
		add(model.RiskMainBranch)
	}
	if isProd(action, ctx) {
		add(model.RiskProdEnv)
	}
	if isDestructive(action, ctx) {
		add(model.RiskDestructive)
	}
	if n, err := strconv.Atoi(ctx["files_changed"]); err == nil && n >= BulkChangeThreshold {
		add(model.RiskBulkChange)
	}
	for _, m := range dependencyManifests {
		if base == m {
			add(model.RiskNewDependency)
			break
		}
	}

	return flags
}

func isCIPath(norm string) bool {
	p := "/" + norm
	return strings.Contains(p, "/.github/workflows/") ||
		strings.Contains(p, "/.circleci/") ||
		strings.HasSuffix(p, "/.gitlab-ci.yml") ||
		strings.HasSuffix(p, "/jenkinsfile")
}

func isMainBranch(target model.Resource, ctx map[string]string) bool {
	candidates := []string{ctx["branch"], ctx["target_branch"]}
	if target.Kind == model.KindBranch {
		candidates = append(candidates, target.Path)
	}
	for _, c := range candidates {
		c = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c)), "refs/heads/")
		for _, b := range mainBranches {
			if c == b {
				return true
			}
		}
	}
	return false
}

func isProd(action model.ActionKind, ctx map[string]string) bool {
	if action == model.DeployProd {
		return true
	}
	switch strings.ToLower(ctx["env"]) {
	case "prod", "production":
		return true
	}
	return false
}

func isDestructive(action model.ActionKind, ctx map[string]string) bool {
	switch action {
	case model.DeleteFile, model.DeleteBranch, model.GitReset, model.RestoreSnapshot:
		return true
	}
	force, _ := strconv.ParseBool(ctx["force"])
	return force
}
