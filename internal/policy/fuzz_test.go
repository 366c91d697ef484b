package policy

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ppiankov/actiongate/internal/model"
)

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func FuzzMatchProtected(f *testing.F) {
	for _, seed := range []string{
		"", "/", ".", "..", ".git", ".git/config", "./.GitHub/Workflows/ci.yml",
		"src\\.env", "a/../secrets/x", "/etc/credentials", "src/main.go", "\x00",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, p string) {
		rule, ok := MatchProtected(p)
		if ok != IsProtected(p) {
			t.Fatalf("MatchProtected and IsProtected disagree for %q", p)
		}
		if ok && rule.Reason == "" {
			t.Fatalf("protected rule %q has no reason", rule.Pattern)
		}
		if isASCII(p) && IsProtected(strings.ToUpper(p)) != ok {
			t.Fatalf("protection of %q depends on case", p)
		}
	})
}

func FuzzClassify(f *testing.F) {
	for _, seed := range []string{"", "autonomous-agent", "Cursor", "my-bot", "zsh", "web-dashboard", "grpc-client", "mcp"} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, label string) {
		got := Classify(label)
		if !got.Valid() {
			t.Fatalf("Classify(%q) = %q, not a valid actor type", label, got)
		}
		if isASCII(label) && Classify(strings.ToUpper(label)) != got {
			t.Fatalf("Classify(%q) depends on case", label)
		}
		if got != model.AutomatedAgent && NewActor(label, nil).Privileged() {
			t.Fatalf("%q is privileged without classifying as automated_agent", label)
		}
	})
}
