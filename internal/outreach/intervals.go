package outreach

import (
	"fmt"
	"time"

	"github.com/teemow/inboxagent/internal/state"
)

// Intervals holds, per stage, how long after entering it the next action is
// due. Closed needs no interval.
type Intervals map[state.Stage]time.Duration

// DefaultIntervals follows up two days after the first email, again five
// days later (a week after the first), and gives up a week after that.
func DefaultIntervals() Intervals {
	return Intervals{
		state.StageInitial:     2 * 24 * time.Hour,
		state.StageFollowedUp1: 5 * 24 * time.Hour,
		state.StageFollowedUp2: 7 * 24 * time.Hour,
	}
}

// Uniform uses the same interval for every open stage.
func Uniform(d time.Duration) Intervals {
	return Intervals{
		state.StageInitial:     d,
		state.StageFollowedUp1: d,
		state.StageFollowedUp2: d,
	}
}

// For returns the interval that starts when a contact enters stage.
func (iv Intervals) For(stage state.Stage) time.Duration {
	return iv[stage]
}

// Validate requires a positive interval for every open stage.
func (iv Intervals) Validate() error {
	for _, s := range []state.Stage{state.StageInitial, state.StageFollowedUp1, state.StageFollowedUp2} {
		if iv[s] <= 0 {
			return fmt.Errorf("follow-up interval for stage %s must be positive", s)
		}
	}
	return nil
}
