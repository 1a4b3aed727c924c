package script

import (
	"context"
)

// DefaultThreshold is the IfImage confidence used when a step does not set one.
const DefaultThreshold = 0.9

// IfImageStep runs Then when the template scores at least Threshold on the
// current screen, and Else otherwise. A missing screenshot scores 0.
type IfImageStep struct {
	Template  string
	Threshold float64
	Then      []Step
	Else      []Step
}

func (s *IfImageStep) Type() StepType { return StepIfImage }

func (s *IfImageStep) Execute(ctx context.Context, rc *RunContext) error {
	score := 0.0
	if img := rc.screenshot(ctx); img != nil {
		score = rc.Matcher.Score(img, s.Template)
	}
	matched := score >= s.Threshold
	rc.Log.Debug("image match", "template", s.Template, "score", score, "threshold", s.Threshold, "matched", matched)

	if matched {
		return runSteps(ctx, rc, s.Then)
	}
	return runSteps(ctx, rc, s.Else)
}

// LoopStep runs Steps Count times. A Count of zero runs nothing.
type LoopStep struct {
	Count int
	Steps []Step
}

func (s *LoopStep) Type() StepType { return StepLoop }

func (s *LoopStep) Execute(ctx context.Context, rc *RunContext) error {
	for i := 0; i < s.Count; i++ {
		rc.Log.Debug("loop iteration", "iteration", i+1, "count", s.Count)
		if err := runSteps(ctx, rc, s.Steps); err != nil {
			return err
		}
	}
	return nil
}

// runSteps executes steps in order, checking for cancellation before each.
// It stops at the first non-nil result, which includes ErrExit.
func runSteps(ctx context.Context, rc *RunContext, steps []Step) error {
	for i, step := range steps {
		if ctx.Err() != nil {
			return ErrInterrupted
		}
		if err := step.Execute(ctx, rc); err != nil {
			return wrapStep(err, i, step.Type())
		}
	}
	return nil
}
