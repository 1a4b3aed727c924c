package script

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const farmYAML = `
name: daily-farm
game: Example Quest
author: ops
variables:
  - key: rounds
    type: int
    default: 3
steps:
  - type: tap
    x: 540
    y: "${row}"
  - type: If Image
    template: templates/claim.png
    then:
      - type: tap
        x: 100
        y: 200
        delay_ms: 500
    else:
      - type: scroll
  - type: loop
    count: 2
    steps:
      - type: wait
      - type: ocr_read
        out_var: gold
  - type: log
    message: done
    level: warn
  - type: exit
`

func TestDecodeYAML_DefaultsAndNesting(t *testing.T) {
	s, err := DecodeYAML([]byte(farmYAML))
	require.NoError(t, err)

	assert.Equal(t, "daily-farm", s.Name)
	require.Len(t, s.Variables, 1)
	assert.Equal(t, float64(3), s.Variables[0].Default, "YAML numbers pass through JSON")
	require.Len(t, s.Steps, 5)

	tap := s.Steps[0].(*TapStep)
	assert.Equal(t, "540", tap.X)
	assert.Equal(t, "${row}", tap.Y)
	assert.Zero(t, tap.Delay)

	cond := s.Steps[1].(*IfImageStep)
	assert.Equal(t, DefaultThreshold, cond.Threshold)
	assert.Equal(t, 500*time.Millisecond, cond.Then[0].(*TapStep).Delay)
	scroll := cond.Else[0].(*ScrollStep)
	assert.Equal(t, ScrollDown, scroll.Direction)
	assert.Equal(t, DefaultScrollDistance, scroll.Distance)
	assert.Equal(t, DefaultScrollDuration, scroll.Duration)

	loop := s.Steps[2].(*LoopStep)
	assert.Equal(t, 2, loop.Count)
	assert.Equal(t, DefaultWaitDelay, loop.Steps[0].(*WaitStep).Delay)
	ocr := loop.Steps[1].(*OcrReadStep)
	assert.Equal(t, DefaultRegion, ocr.Region)
	assert.Equal(t, "gold", ocr.OutVar)

	assert.Equal(t, "WARN", s.Steps[3].(*LogStep).Level)
	assert.IsType(t, &ExitStep{}, s.Steps[4])
}

func TestDecode_StepDefaults(t *testing.T) {
	doc := `{"name":"d","steps":[
		{"type":"swipe","x1":1,"y1":2,"x2":3,"y2":4},
		{"type":"loop"},
		{"type":"ocr read"},
		{"type":"log","message":"m"},
		{"type":"customjs","code":"x"},
		{"type":"input text","text":"hi"}
	]}`
	s, err := Decode([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, DefaultSwipeDuration, s.Steps[0].(*SwipeStep).Duration)
	assert.Equal(t, 1, s.Steps[1].(*LoopStep).Count)
	assert.Equal(t, DefaultOcrOutVar, s.Steps[2].(*OcrReadStep).OutVar)
	assert.Equal(t, LevelInfo, s.Steps[3].(*LogStep).Level)
	assert.Equal(t, StepCustomCode, s.Steps[4].Type())
	assert.Equal(t, StepInputText, s.Steps[5].Type())
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing name", `{"steps":[]}`},
		{"missing steps", `{"name":"x"}`},
		{"unknown type", `{"name":"x","steps":[{"type":"teleport"}]}`},
		{"negative delay", `{"name":"x","steps":[{"type":"wait","delay_ms":-1}]}`},
		{"threshold above one", `{"name":"x","steps":[{"type":"if_image","threshold":1.5}]}`},
		{"negative loop count", `{"name":"x","steps":[{"type":"loop","count":-2}]}`},
		{"bad nested step", `{"name":"x","steps":[{"type":"loop","steps":[{"type":"wait","delay_ms":"soon"}]}]}`},
		{"duplicate variable", `{"name":"x","variables":[{"key":"a"},{"key":"a"}],"steps":[]}`},
		{"unknown variable type", `{"name":"x","variables":[{"key":"a","type":"colour"}],"steps":[]}`},
		{"min above max", `{"name":"x","variables":[{"key":"a","type":"number","min":5,"max":1}],"steps":[]}`},
		{"zero step", `{"name":"x","variables":[{"key":"a","type":"number","step":0}],"steps":[]}`},
		{"not json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParseStepType(t *testing.T) {
	for _, name := range []string{"if_image", "If Image", "IFIMAGE", "if-image"} {
		got, err := ParseStepType(name)
		require.NoError(t, err, name)
		assert.Equal(t, StepIfImage, got)
	}
	_, err := ParseStepType("fly")
	assert.ErrorIs(t, err, ErrUnknownStepType)
}

func TestEncode_RoundTrip(t *testing.T) {
	s, err := DecodeYAML([]byte(farmYAML))
	require.NoError(t, err)

	data, err := Encode(s)
	require.NoError(t, err)

	again, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, s.Steps, again.Steps)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	first := raw["steps"].([]any)[0].(map[string]any)
	assert.Equal(t, "tap", first["type"])
	assert.Equal(t, float64(540), first["x"])
	assert.Equal(t, "${row}", first["y"])
}

func TestDecode_VariableTypes(t *testing.T) {
	for _, typ := range []string{VarText, VarNumber, VarBoolean, VarSelect, VarMultiSelect, VarWeekdays} {
		t.Run(typ, func(t *testing.T) {
			doc := `{"name":"x","variables":[{"key":"k","type":"` + typ +
				`","options":["a","b"],"min":1,"max":9,"step":0.5,"section":"Main"}],"steps":[{"type":"exit"}]}`
			s, err := Decode([]byte(doc))
			require.NoError(t, err)
			require.Len(t, s.Variables, 1)
			assert.Equal(t, typ, s.Variables[0].Type)
		})
	}
}

func TestVariables_RoundTrip(t *testing.T) {
	const doc = `
name: arena
variables:
  - key: rounds
    label: Rounds
    type: number
    default: 3
    min: 1
    max: 10
    step: 1
    section: Arena
  - key: mode
    type: select
    default: hard
    options: [easy, hard]
  - key: days
    type: weekdays
    default: [MON, FRI]
    options: [MON, TUE, WED, THU, FRI, SAT, SUN]
    section: Schedule
  - key: boost
    type: boolean
    default: false
steps:
  - type: exit
`
	s, err := DecodeYAML([]byte(doc))
	require.NoError(t, err)

	data, err := Encode(s)
	require.NoError(t, err)
	again, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, s.Variables, again.Variables)

	rounds := again.Variables[0]
	assert.Equal(t, "Rounds", rounds.Label)
	assert.Equal(t, VarNumber, rounds.Type)
	require.NotNil(t, rounds.Min)
	require.NotNil(t, rounds.Max)
	require.NotNil(t, rounds.Step)
	assert.Equal(t, 1.0, *rounds.Min)
	assert.Equal(t, 10.0, *rounds.Max)
	assert.Equal(t, 1.0, *rounds.Step)
	assert.Equal(t, "Arena", rounds.Section)

	assert.Equal(t, []any{"easy", "hard"}, again.Variables[1].Options)
	assert.Len(t, again.Variables[2].Options, 7)
	assert.Equal(t, []any{"MON", "FRI"}, again.Variables[2].Default)
	assert.Equal(t, false, again.Variables[3].Default)
}

func TestVariable_DeepCopy(t *testing.T) {
	lo := 1.0
	s := &Script{Name: "x", Variables: []Variable{{Key: "k", Min: &lo, Options: []any{"a"}}}}

	cpy := s.DeepCopy()
	*cpy.Variables[0].Min = 5
	cpy.Variables[0].Options[0] = "z"

	assert.Equal(t, 1.0, *s.Variables[0].Min)
	assert.Equal(t, []any{"a"}, s.Variables[0].Options)
}

func TestDecodeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "farm.yml")
	require.NoError(t, os.WriteFile(path, []byte(farmYAML), 0o600))

	s, err := DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, "daily-farm", s.Name)

	_, err = DecodeFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestScript_DeepCopyAndDefaults(t *testing.T) {
	s, err := DecodeYAML([]byte(farmYAML))
	require.NoError(t, err)

	cpy := s.DeepCopy()
	cpy.Steps[1].(*IfImageStep).Then[0].(*TapStep).X = "999"
	assert.Equal(t, "100", s.Steps[1].(*IfImageStep).Then[0].(*TapStep).X)

	assert.Equal(t, map[string]any{"rounds": float64(3)}, s.Defaults())
	merged := MergeVariables(s.Defaults(), map[string]any{"rounds": 7, "row": 2})
	assert.Equal(t, map[string]any{"rounds": 7, "row": 2}, merged)
}

func TestCoerceVariable(t *testing.T) {
	v, err := CoerceVariable(VarInt, " 12 ")
	require.NoError(t, err)
	assert.Equal(t, 12, v)

	v, err = CoerceVariable(VarBool, "true")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	_, err = CoerceVariable(VarFloat, "abc")
	assert.ErrorIs(t, err, ErrInvalidNumber)

	v, err = CoerceVariable("", "raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", v)

	v, err = CoerceVariable(VarNumber, "2.5")
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	v, err = CoerceVariable(VarBoolean, "false")
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = CoerceVariable(VarWeekdays, "MON, ,FRI")
	require.NoError(t, err)
	assert.Equal(t, []any{"MON", "FRI"}, v)

	v, err = CoerceVariable(VarSelect, "hard")
	require.NoError(t, err)
	assert.Equal(t, "hard", v)
}
