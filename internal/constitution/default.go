package constitution

// DefaultManifestYAML returns the commented manifest written by `actiongate init`.
func DefaultManifestYAML() string {
	return `# actiongate constitution manifest
# Generated by: actiongate init
#
# Any edit changes the constitution hash recorded on every later audit event.
# A manifest that is missing a required singularity or system, or that is not
# marked constitutional, makes the authorizer deny every request.

constitutional: true
version: "1"

# Non-negotiable properties. All four are required.
singularities:
  - anti_bypass_enforcement
  - audit_trail_integrity
  - fail_closed_validation
  - human_oversight

# Subsystems that must be declared present.
systems:
  - id: action_authorizer
    description: decides allow / deny / hold for every irreversible action
  - id: gate_runner
    description: runs the external validation suite
  - id: audit_log
    description: append-only record of every decision
  - id: constitution
    description: this manifest

# Optional per-action contracts. Undeclared actions have no contract.
actions:
  - id: git_commit
    requires: [gate_runner]
    risk_level: medium
    blocked_if: [gate_failed]
    constitutional: true
  - id: git_push
    requires: [gate_runner]
    risk_level: high
    blocked_if: [gate_failed]
    constitutional: true
  - id: promote_to_repo
    requires: [gate_runner]
    risk_level: high
    blocked_if: [gate_failed]
    constitutional: true
  - id: deploy_prod
    requires: [action_authorizer]
    risk_level: critical
    blocked_if: [non_privileged_actor]
    constitutional: true
`
}
