// Package optutil provides shared option resolution helpers for CLI backends.
package optutil

import (
	"fmt"

	"github.com/cyrup-ai/kodegen-claude-agent"
)

// RootOptionsSet reports whether either OptionMode or OptionHITL is present
// in opts. When true, root options take precedence over backend-specific
// permission/sandbox options.
func RootOptionsSet(opts map[string]string) bool {
	return opts[agentrun.OptionMode] != "" || opts[agentrun.OptionHITL] != ""
}

// ValidateModeHITL checks OptionMode and OptionHITL for valid values,
// prefixing any error with backend for diagnostics.
func ValidateModeHITL(backend string, opts map[string]string) error {
	if mode := agentrun.Mode(opts[agentrun.OptionMode]); mode != "" && !mode.Valid() {
		return fmt.Errorf("%s: unknown mode %q: valid: plan, act", backend, mode)
	}
	if hitl := agentrun.HITL(opts[agentrun.OptionHITL]); hitl != "" && !hitl.Valid() {
		return fmt.Errorf("%s: unknown hitl %q: valid: on, off", backend, hitl)
	}
	return nil
}

// ValidateEffort checks OptionEffort for a recognized value, prefixing any
// error with backend for diagnostics.
func ValidateEffort(backend string, opts map[string]string) error {
	if e := agentrun.Effort(opts[agentrun.OptionEffort]); e != "" && !e.Valid() {
		return fmt.Errorf("%s: unknown effort %q: valid: low, medium, high, max", backend, e)
	}
	return nil
}
