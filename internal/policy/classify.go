package policy

import (
	"maps"
	"slices"
	"strings"
	"unicode"

	"github.com/ppiankov/actiongate/internal/model"
)

// ClassifyRule maps a set of label markers to an actor type. A marker of
// several words matches those words in sequence.
type ClassifyRule struct {
	Type    model.ActorType
	Markers []string
}

// ClassifyRules is evaluated in order. First match wins.
// Agent-name markers > editor > terminal > web > api > unknown.
var ClassifyRules = []ClassifyRule{
	{model.AutomatedAgent, []string{"automated", "autonomous", "orchestrator", "system agent"}},
	{model.PersonaAgent, []string{"persona", "assistant", "agent", "bot"}},
	{model.EditorCLI, []string{"vscode", "cursor", "jetbrains", "vim", "emacs", "editor", "ide"}},
	{model.TerminalCLI, []string{"terminal", "shell", "bash", "zsh", "tty", "cli"}},
	{model.WebUI, []string{"web", "browser", "dashboard", "ui"}},
	{model.APIClient, []string{"api", "sdk", "http", "grpc", "client"}},
}

// Classify returns the actor type for a free-text label. The label is split
// into lowercase words on anything that is not a letter or digit, and markers
// match whole words, so "client" does not match "cli".
func Classify(label string) model.ActorType {
	words := labelWords(label)
	for _, rule := range ClassifyRules {
		for _, m := range rule.Markers {
			if containsRun(words, labelWords(m)) {
				return rule.Type
			}
		}
	}
	return model.UnknownActor
}

func labelWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsRun reports whether run appears as consecutive words in words.
func containsRun(words, run []string) bool {
	if len(run) == 0 {
		return false
	}
	for i := 0; i+len(run) <= len(words); i++ {
		if slices.Equal(words[i:i+len(run)], run) {
			return true
		}
	}
	return false
}

// NewActor builds an Actor from a free-text label.
func NewActor(label string, metadata map[string]string) model.Actor {
	var md map[string]string
	if len(metadata) > 0 {
		md = maps.Clone(metadata)
	}
	return model.Actor{
		Type:     Classify(label),
		Name:     label,
		Metadata: md,
	}
}
