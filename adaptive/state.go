package adaptive

import (
	"time"

	"github.com/arclane/ratelimitd"
)

// State is the per-key adaptive data model spec.md §3 requires: the
// unadjusted reference config, the config currently in effect, when that
// decision was made, why, and any manual override shadowing it. Created on
// first adaptation, cleared when adaptation reverts to the original config
// or the override is removed.
type State struct {
	OriginalConfig    ratelimitd.RateLimitConfig
	AdaptedConfig     ratelimitd.RateLimitConfig
	DecisionTimestamp time.Time
	Reasoning         string
	ManualOverride    *ratelimitd.RateLimitConfig
}
