package script

import (
	"fmt"
	"strconv"
	"strings"
)

// Variable type tags accepted in a script's variable declarations.
const (
	VarText        = "text"
	VarNumber      = "number"
	VarBoolean     = "boolean"
	VarSelect      = "select"
	VarMultiSelect = "multiselect"
	VarWeekdays    = "weekdays"
)

// Older documents use these tags; they coerce like their counterparts above.
const (
	VarString = "string"
	VarInt    = "int"
	VarFloat  = "float"
	VarBool   = "bool"
)

// Variable declares a named input a script reads through ${key}. Everything
// besides Key and Default is form metadata; the engine only sees values.
type Variable struct {
	Key     string   `json:"key" yaml:"key"`
	Label   string   `json:"label,omitempty" yaml:"label,omitempty"`
	Type    string   `json:"type,omitempty" yaml:"type,omitempty"`
	Default any      `json:"default,omitempty" yaml:"default,omitempty"`
	Options []any    `json:"options,omitempty" yaml:"options,omitempty"`
	Min     *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Step    *float64 `json:"step,omitempty" yaml:"step,omitempty"`
	Section string   `json:"section,omitempty" yaml:"section,omitempty"`
}

// IsVariableType reports whether typ is a known variable type tag.
// The empty tag is treated as text.
func IsVariableType(typ string) bool {
	switch strings.ToLower(typ) {
	case "", VarText, VarNumber, VarBoolean, VarSelect, VarMultiSelect, VarWeekdays,
		VarString, VarInt, VarFloat, VarBool:
		return true
	}
	return false
}

// DeepCopy returns an independent copy of the declaration.
func (v Variable) DeepCopy() Variable {
	cpy := v
	cpy.Default = deepCopyValue(v.Default)
	if v.Options != nil {
		cpy.Options = deepCopyValue(v.Options).([]any)
	}
	cpy.Min = copyFloat(v.Min)
	cpy.Max = copyFloat(v.Max)
	cpy.Step = copyFloat(v.Step)
	return cpy
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}

// Script is a named, ordered list of steps.
type Script struct {
	Name        string
	Game        string
	Author      string
	Description string
	Variables   []Variable
	Steps       []Step
}

// Defaults returns the declared default value of every variable that has one.
func (s *Script) Defaults() map[string]any {
	out := make(map[string]any, len(s.Variables))
	for _, v := range s.Variables {
		if v.Default != nil {
			out[v.Key] = deepCopyValue(v.Default)
		}
	}
	return out
}

// DeepCopy returns an independent copy of the script, including its step tree.
func (s *Script) DeepCopy() *Script {
	if s == nil {
		return nil
	}
	cpy := *s
	if s.Variables != nil {
		cpy.Variables = make([]Variable, len(s.Variables))
		for i, v := range s.Variables {
			cpy.Variables[i] = v.DeepCopy()
		}
	}
	cpy.Steps = cloneSteps(s.Steps)
	return &cpy
}

// RunSpec binds a script to one run on one instance.
type RunSpec struct {
	RunID    string
	BotID    string
	Instance string
	Script   *Script

	// Variables seeds the run's variable map. The engine copies it, so the
	// caller's map is never modified by the run.
	Variables map[string]any
}

// MergeVariables layers maps left to right; later maps win on key clashes.
// Nil maps are skipped and the result is always a fresh map.
func MergeVariables(layers ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, l := range layers {
		for k, v := range l {
			out[k] = deepCopyValue(v)
		}
	}
	return out
}

// CoerceVariable converts a raw string into the declared variable type.
// Multiselect and weekdays values are comma separated lists. Text, select and
// unknown types return the input unchanged.
func CoerceVariable(typ, raw string) (any, error) {
	switch strings.ToLower(typ) {
	case VarInt:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an int", ErrInvalidNumber, raw)
		}
		return n, nil
	case VarNumber, VarFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidNumber, raw)
		}
		return f, nil
	case VarMultiSelect, VarWeekdays:
		out := []any{}
		for _, part := range strings.Split(raw, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	case VarBoolean, VarBool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a boolean", ErrInvalidScript, raw)
		}
		return b, nil
	default:
		return raw, nil
	}
}

func cloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, st := range steps {
		out[i] = cloneStep(st)
	}
	return out
}

func cloneStep(st Step) Step {
	switch s := st.(type) {
	case *TapStep:
		c := *s
		return &c
	case *SwipeStep:
		c := *s
		return &c
	case *ScrollStep:
		c := *s
		return &c
	case *WaitStep:
		c := *s
		return &c
	case *InputTextStep:
		c := *s
		return &c
	case *OcrReadStep:
		c := *s
		return &c
	case *LogStep:
		c := *s
		return &c
	case *ExitStep:
		return &ExitStep{}
	case *CustomCodeStep:
		c := *s
		return &c
	case *IfImageStep:
		c := *s
		c.Then = cloneSteps(s.Then)
		c.Else = cloneSteps(s.Else)
		return &c
	case *LoopStep:
		c := *s
		c.Steps = cloneSteps(s.Steps)
		return &c
	default:
		// Foreign Step implementations are treated as immutable.
		return st
	}
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
