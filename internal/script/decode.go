package script

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	yaml "gopkg.in/yaml.v3"
)

//go:embed schema.json
var documentSchema string

var schemaLoader = gojsonschema.NewStringLoader(documentSchema)

// stepAliases maps normalised authoring names to step kinds.
var stepAliases = map[string]StepType{
	"tap":         StepTap,
	"swipe":       StepSwipe,
	"scroll":      StepScroll,
	"wait":        StepWait,
	"input":       StepInputText,
	"input text":  StepInputText,
	"if image":    StepIfImage,
	"ifimage":     StepIfImage,
	"loop":        StepLoop,
	"ocr read":    StepOcrRead,
	"ocrread":     StepOcrRead,
	"log":         StepLog,
	"exit":        StepExit,
	"custom code": StepCustomCode,
	"customcode":  StepCustomCode,
	"custom js":   StepCustomCode,
	"customjs":    StepCustomCode,
}

// ParseStepType resolves an authoring name such as "tap", "If Image" or
// "ocr_read" to its step kind.
func ParseStepType(name string) (StepType, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer("_", " ", "-", " ").Replace(n)
	n = strings.Join(strings.Fields(n), " ")
	if t, ok := stepAliases[n]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStepType, name)
}

// docName is the "type" value written for a step kind.
func docName(t StepType) string {
	return strings.ToLower(string(t))
}

// Decode parses a JSON script document, checks it against the document
// schema and validates it.
func Decode(data []byte) (*Script, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}
	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}
	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DecodeYAML parses a YAML script document. It is converted to JSON and
// goes through Decode.
func DecodeYAML(data []byte) (*Script, error) {
	jsonData, err := yamlToJSON(data)
	if err != nil {
		return nil, err
	}
	return Decode(jsonData)
}

// DecodeFile reads a script document, choosing the format by extension.
func DecodeFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return DecodeYAML(data)
	default:
		return Decode(data)
	}
}

// Encode renders a script as an indented JSON document.
func Encode(s *Script) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing YAML: %w", ErrInvalidScript, err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: converting YAML: %w", ErrInvalidScript, err)
	}
	return out, nil
}

func validateSchema(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidScript, strings.Join(msgs, "; "))
}

// ─── Wire format ────────────────────────────────────────────────

type scriptDoc struct {
	Name        string            `json:"name"`
	Game        string            `json:"game,omitempty"`
	Author      string            `json:"author,omitempty"`
	Description string            `json:"description,omitempty"`
	Variables   []Variable        `json:"variables,omitempty"`
	Steps       []json.RawMessage `json:"steps"`
}

// stepDoc is the union of every step kind's fields.
type stepDoc struct {
	Type string `json:"type"`

	X  json.RawMessage `json:"x,omitempty"`
	Y  json.RawMessage `json:"y,omitempty"`
	X1 json.RawMessage `json:"x1,omitempty"`
	Y1 json.RawMessage `json:"y1,omitempty"`
	X2 json.RawMessage `json:"x2,omitempty"`
	Y2 json.RawMessage `json:"y2,omitempty"`

	DelayMS    *int64 `json:"delay_ms,omitempty"`
	DurationMS *int64 `json:"duration_ms,omitempty"`

	Direction string `json:"direction,omitempty"`
	Distance  *int   `json:"distance,omitempty"`

	Text string `json:"text,omitempty"`

	Template  string            `json:"template,omitempty"`
	Threshold *float64          `json:"threshold,omitempty"`
	Then      []json.RawMessage `json:"then,omitempty"`
	Else      []json.RawMessage `json:"else,omitempty"`

	Count *int              `json:"count,omitempty"`
	Steps []json.RawMessage `json:"steps,omitempty"`

	Region string `json:"region,omitempty"`
	OutVar string `json:"out_var,omitempty"`
	Lang   string `json:"lang,omitempty"`

	Message string `json:"message,omitempty"`
	Level   string `json:"level,omitempty"`

	Code string `json:"code,omitempty"`
}

// UnmarshalJSON decodes a script document without schema validation.
func (s *Script) UnmarshalJSON(data []byte) error {
	var doc scriptDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	steps, err := decodeSteps(doc.Steps)
	if err != nil {
		return err
	}
	*s = Script{
		Name:        doc.Name,
		Game:        doc.Game,
		Author:      doc.Author,
		Description: doc.Description,
		Variables:   doc.Variables,
		Steps:       steps,
	}
	return nil
}

// MarshalJSON encodes the script in document form.
func (s Script) MarshalJSON() ([]byte, error) {
	doc := scriptDoc{
		Name:        s.Name,
		Game:        s.Game,
		Author:      s.Author,
		Description: s.Description,
		Variables:   s.Variables,
	}
	steps, err := encodeSteps(s.Steps)
	if err != nil {
		return nil, err
	}
	doc.Steps = steps
	if doc.Steps == nil {
		doc.Steps = []json.RawMessage{}
	}
	return json.Marshal(doc)
}

func decodeSteps(raws []json.RawMessage) ([]Step, error) {
	steps := make([]Step, 0, len(raws))
	for i, raw := range raws {
		st, err := decodeStep(raw)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		steps = append(steps, st)
	}
	return steps, nil
}

func decodeStep(raw json.RawMessage) (Step, error) { //nolint:gocyclo // one case per step kind
	var d stepDoc
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	kind, err := ParseStepType(d.Type)
	if err != nil {
		return nil, err
	}

	switch kind {
	case StepTap:
		x, err := coordinate("x", d.X)
		if err != nil {
			return nil, err
		}
		y, err := coordinate("y", d.Y)
		if err != nil {
			return nil, err
		}
		return &TapStep{X: x, Y: y, Delay: millis(d.DelayMS, 0)}, nil

	case StepSwipe:
		var c [4]string
		for i, f := range []struct {
			name string
			raw  json.RawMessage
		}{{"x1", d.X1}, {"y1", d.Y1}, {"x2", d.X2}, {"y2", d.Y2}} {
			v, err := coordinate(f.name, f.raw)
			if err != nil {
				return nil, err
			}
			c[i] = v
		}
		return &SwipeStep{X1: c[0], Y1: c[1], X2: c[2], Y2: c[3], Duration: millis(d.DurationMS, DefaultSwipeDuration)}, nil

	case StepScroll:
		dir := d.Direction
		if dir == "" {
			dir = ScrollDown
		}
		dist := DefaultScrollDistance
		if d.Distance != nil {
			dist = *d.Distance
		}
		return &ScrollStep{Direction: strings.ToUpper(dir), Distance: dist, Duration: millis(d.DurationMS, DefaultScrollDuration)}, nil

	case StepWait:
		return &WaitStep{Delay: millis(d.DelayMS, DefaultWaitDelay)}, nil

	case StepInputText:
		return &InputTextStep{Text: d.Text}, nil

	case StepIfImage:
		threshold := DefaultThreshold
		if d.Threshold != nil {
			threshold = *d.Threshold
		}
		then, err := decodeSteps(d.Then)
		if err != nil {
			return nil, fmt.Errorf("then: %w", err)
		}
		els, err := decodeSteps(d.Else)
		if err != nil {
			return nil, fmt.Errorf("else: %w", err)
		}
		return &IfImageStep{Template: d.Template, Threshold: threshold, Then: then, Else: els}, nil

	case StepLoop:
		count := 1
		if d.Count != nil {
			count = *d.Count
		}
		body, err := decodeSteps(d.Steps)
		if err != nil {
			return nil, fmt.Errorf("steps: %w", err)
		}
		return &LoopStep{Count: count, Steps: body}, nil

	case StepOcrRead:
		region := d.Region
		if region == "" {
			region = DefaultRegion
		}
		out := d.OutVar
		if out == "" {
			out = DefaultOcrOutVar
		}
		return &OcrReadStep{Region: region, OutVar: out, Lang: d.Lang}, nil

	case StepLog:
		level := d.Level
		if level == "" {
			level = LevelInfo
		}
		return &LogStep{Message: d.Message, Level: strings.ToUpper(level)}, nil

	case StepExit:
		return &ExitStep{}, nil

	default:
		return &CustomCodeStep{Code: d.Code}, nil
	}
}

// coordinate accepts a JSON number or string. An absent value is "0".
func coordinate(field string, raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "0", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return "", fmt.Errorf("%w: %s must be a number or string", ErrInvalidScript, field)
	}
	return n.String(), nil
}

func millis(v *int64, def time.Duration) time.Duration {
	if v == nil {
		return def
	}
	return time.Duration(*v) * time.Millisecond
}

func encodeSteps(steps []Step) ([]json.RawMessage, error) {
	if steps == nil {
		return nil, nil
	}
	out := make([]json.RawMessage, 0, len(steps))
	for i, st := range steps {
		raw, err := encodeStep(st)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		out = append(out, raw)
	}
	return out, nil
}

func encodeStep(st Step) (json.RawMessage, error) { //nolint:gocyclo // one case per step kind
	d := stepDoc{Type: docName(st.Type())}
	ms := func(v time.Duration) *int64 {
		n := v.Milliseconds()
		return &n
	}

	switch s := st.(type) {
	case *TapStep:
		d.X, d.Y = encodeCoordinate(s.X), encodeCoordinate(s.Y)
		d.DelayMS = ms(s.Delay)
	case *SwipeStep:
		d.X1, d.Y1 = encodeCoordinate(s.X1), encodeCoordinate(s.Y1)
		d.X2, d.Y2 = encodeCoordinate(s.X2), encodeCoordinate(s.Y2)
		d.DurationMS = ms(s.Duration)
	case *ScrollStep:
		d.Direction = s.Direction
		d.Distance = &s.Distance
		d.DurationMS = ms(s.Duration)
	case *WaitStep:
		d.DelayMS = ms(s.Delay)
	case *InputTextStep:
		d.Text = s.Text
	case *IfImageStep:
		d.Template = s.Template
		d.Threshold = &s.Threshold
		var err error
		if d.Then, err = encodeSteps(s.Then); err != nil {
			return nil, err
		}
		if d.Else, err = encodeSteps(s.Else); err != nil {
			return nil, err
		}
	case *LoopStep:
		d.Count = &s.Count
		var err error
		if d.Steps, err = encodeSteps(s.Steps); err != nil {
			return nil, err
		}
	case *OcrReadStep:
		d.Region, d.OutVar, d.Lang = s.Region, s.OutVar, s.Lang
	case *LogStep:
		d.Message, d.Level = s.Message, s.Level
	case *ExitStep:
	case *CustomCodeStep:
		d.Code = s.Code
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownStepType, st)
	}
	return json.Marshal(d)
}

// encodeCoordinate writes integer literals as JSON numbers and anything
// else (such as "${x}") as a string.
func encodeCoordinate(v string) json.RawMessage {
	if n, err := strconv.Atoi(v); err == nil {
		return json.RawMessage(strconv.Itoa(n))
	}
	b, _ := json.Marshal(v)
	return b
}
