package model

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrInvalidRequest is wrapped by every error returned from ValidateRequest.
var ErrInvalidRequest = errors.New("invalid_request")

// ValidateRequest checks the enum and path fields of a request before any
// policy reasoning happens.
func ValidateRequest(actor Actor, action ActionKind, target Resource) error {
	if !actor.Type.Valid() {
		return fmt.Errorf("%w: unknown actor type %q", ErrInvalidRequest, actor.Type)
	}
	if !action.Valid() {
		return fmt.Errorf("%w: unknown action kind %q", ErrInvalidRequest, action)
	}
	if !target.Kind.Valid() {
		return fmt.Errorf("%w: unknown resource kind %q", ErrInvalidRequest, target.Kind)
	}
	if err := validatePath(target.Path); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func validatePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return errors.New("empty target path")
	}
	if strings.ContainsRune(p, 0) {
		return errors.New("target path contains NUL byte")
	}
	cleaned := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("target path %q escapes its root", p)
	}
	return nil
}
