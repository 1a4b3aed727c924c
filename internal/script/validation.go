package script

import (
	"fmt"
	"strings"
)

// MaxNameLength is the maximum length of a script name.
const MaxNameLength = 100

// Validate checks a script for semantic problems the document schema cannot
// express. It returns the first problem found, wrapped in ErrInvalidScript.
func Validate(s *Script) error {
	if s == nil {
		return fmt.Errorf("%w: nil script", ErrInvalidScript)
	}
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScript)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidScript, MaxNameLength)
	}

	seen := make(map[string]bool, len(s.Variables))
	for i, v := range s.Variables {
		if strings.TrimSpace(v.Key) == "" {
			return fmt.Errorf("%w: variable %d: key is required", ErrInvalidScript, i)
		}
		if seen[v.Key] {
			return fmt.Errorf("%w: variable %q declared twice", ErrInvalidScript, v.Key)
		}
		seen[v.Key] = true
		if !IsVariableType(v.Type) {
			return fmt.Errorf("%w: variable %q: unknown type %q", ErrInvalidScript, v.Key, v.Type)
		}
		if v.Min != nil && v.Max != nil && *v.Min > *v.Max {
			return fmt.Errorf("%w: variable %q: min exceeds max", ErrInvalidScript, v.Key)
		}
		if v.Step != nil && *v.Step <= 0 {
			return fmt.Errorf("%w: variable %q: step must be positive", ErrInvalidScript, v.Key)
		}
	}

	return validateSteps(s.Steps, "")
}

func validateSteps(steps []Step, prefix string) error { //nolint:gocyclo // one case per step kind
	for i, st := range steps {
		at := fmt.Sprintf("%s%d", prefix, i)
		var problem string

		switch s := st.(type) {
		case nil:
			problem = "missing step"
		case *TapStep:
			if s.Delay < 0 {
				problem = "delay must not be negative"
			}
		case *SwipeStep:
			if s.Duration < 0 {
				problem = "duration must not be negative"
			}
		case *ScrollStep:
			if s.Distance < 0 {
				problem = "distance must not be negative"
			} else if s.Duration < 0 {
				problem = "duration must not be negative"
			}
		case *WaitStep:
			if s.Delay < 0 {
				problem = "delay must not be negative"
			}
		case *IfImageStep:
			if s.Threshold < 0 || s.Threshold > 1 {
				problem = "threshold must be within [0,1]"
				break
			}
			if err := validateSteps(s.Then, at+".then."); err != nil {
				return err
			}
			if err := validateSteps(s.Else, at+".else."); err != nil {
				return err
			}
		case *LoopStep:
			if s.Count < 0 {
				problem = "count must not be negative"
				break
			}
			if err := validateSteps(s.Steps, at+"."); err != nil {
				return err
			}
		}

		if problem != "" {
			return fmt.Errorf("%w: step %s: %s", ErrInvalidScript, at, problem)
		}
	}
	return nil
}
