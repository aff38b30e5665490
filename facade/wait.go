package facade

import (
	"context"
	"time"

	"github.com/cyrup-ai/kodegen-claude-agent/manager"
)

// pollInterval is the completion-check tick waitForCompletion selects
// against, per SPEC_FULL.md section 9: "callers waiting for completion
// select! between the broadcast channel and a 100 ms tick that checks
// working." This package selects on the tick alone (rather than also
// subscribing to the supervisor's broadcast channel) since Facade only
// needs a boolean stop condition, not the individual messages in transit —
// a caller wanting every streamed frame uses manager.AgentManager directly
// and subscribes via the supervisor, which Facade does not expose.
const pollInterval = 100 * time.Millisecond

// waitForCompletion blocks until sessionID stops working (either it
// completes, or its activity window lapses) or ctx is done. Best-effort:
// an Info lookup failure (session evicted mid-wait) ends the wait
// immediately rather than erroring the caller.
func waitForCompletion(ctx context.Context, mgr *manager.AgentManager, sessionID string) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		info, err := mgr.Info(sessionID, 0)
		if err != nil || !info.Working {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
