package domain

import "fmt"

// RunStage enumerates pipeline milestones in the order they must occur.
type RunStage int

const (
	StageIdle RunStage = iota
	StageFetched
	StageRuleScored
	StageSelected
	StageLLMScored
	StageFinalized
	StagePublished
)

func (s RunStage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageFetched:
		return "fetched"
	case StageRuleScored:
		return "rule_scored"
	case StageSelected:
		return "selected"
	case StageLLMScored:
		return "llm_scored"
	case StageFinalized:
		return "finalized"
	case StagePublished:
		return "published"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// RunTracker enforces forward-only stage transitions within one run.
type RunTracker struct {
	stage RunStage
}

// Stage returns the last reached stage.
func (t *RunTracker) Stage() RunStage {
	return t.stage
}

// Advance moves to next, which must be exactly one step ahead.
func (t *RunTracker) Advance(next RunStage) error {
	if next != t.stage+1 {
		return fmt.Errorf("%w: %s -> %s", ErrStageOrder, t.stage, next)
	}
	t.stage = next
	return nil
}
