package agentrun

import (
	"fmt"
	"sort"
	"strings"
)

// sdkVersion is reported to child processes via identityVersionVar so
// backend logs and support requests can be correlated to an SDK build.
const sdkVersion = "0.1.0"

// identityEntrypointVar and identityVersionVar are injected into every
// spawned subprocess's environment so the child (and anything it shells
// out to) can identify the orchestrator that launched it.
const (
	identityEntrypointVar   = "CLAUDE_CODE_ENTRYPOINT"
	identityEntrypointValue = "sdk-go"
	identityVersionVar      = "CLAUDE_AGENT_SDK_VERSION"
)

// dangerousEnvVars lists environment variables that can redirect dynamic
// linking, module resolution, or binary discovery for a spawned subprocess.
// A session may never set these via Session.Env — doing so is rejected by
// [ValidateEnv] rather than silently dropped, so callers learn about a
// misconfigured session at Engine.Start instead of a confusing subprocess
// failure downstream.
var dangerousEnvVars = map[string]struct{}{
	"LD_PRELOAD":            {},
	"LD_LIBRARY_PATH":       {},
	"DYLD_INSERT_LIBRARIES": {},
	"DYLD_LIBRARY_PATH":     {},
	"PATH":                  {},
	"NODE_OPTIONS":          {},
	"PYTHONPATH":            {},
	"PERL5LIB":              {},
	"RUBYLIB":               {},
}

// ValidateEnv reports an error if overrides names any variable in the
// denylist that subprocess transports refuse to let a session override
// (see [dangerousEnvVars]). The parent process's own values for these
// variables are always preserved; this only guards session-supplied
// overrides.
func ValidateEnv(overrides map[string]string) error {
	for k := range overrides {
		if _, dangerous := dangerousEnvVars[k]; dangerous {
			return fmt.Errorf("agentrun: environment variable %q may not be overridden by a session", k)
		}
	}
	return nil
}

// MergeEnv merges overrides on top of base (both in "KEY=VALUE" form for
// base, map form for overrides) and injects the orchestrator's identity
// variables. Callers must run [ValidateEnv] first — MergeEnv does not
// re-check the denylist.
//
// The returned slice is suitable for exec.Cmd.Env and is sorted for
// deterministic output (useful in tests and logs).
func MergeEnv(base []string, overrides map[string]string) []string {
	merged := make(map[string]string, len(base)+len(overrides)+2)
	for _, kv := range base {
		k, v, ok := splitEnvPair(kv)
		if ok {
			merged[k] = v
		}
	}
	for k, v := range overrides {
		merged[k] = v
	}
	merged[identityEntrypointVar] = identityEntrypointValue
	merged[identityVersionVar] = sdkVersion

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// splitEnvPair splits a "KEY=VALUE" string as used in os.Environ()/exec.Cmd.Env.
// Returns ok=false for malformed entries (no '=').
func splitEnvPair(kv string) (key, value string, ok bool) {
	i := strings.IndexByte(kv, '=')
	if i < 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}
