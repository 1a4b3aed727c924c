package runner

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	yaml "gopkg.in/yaml.v3"
)

// DefaultInstanceCooldown is the delay between starting consecutive instances.
const DefaultInstanceCooldown = time.Second

// Run status placeholders and messages.
const (
	NoInstanceName = "default"
	NoScriptName   = "N/A"

	MsgNoInstances  = "No instances configured"
	MsgNoBot        = "No bot profile"
	MsgScheduled    = "Scheduled"
	MsgInstanceBusy = "Instance busy"
	MsgStoppedUser  = "Stopped by user"
	MsgCompleted    = "Completed"
	MsgInterrupted  = "Interrupted"
)

// State is the lifecycle state of one instance within a run.
type State string

// Run states.
const (
	StateRunning State = "RUNNING"
	StateWaiting State = "WAITING"
	StateStopped State = "STOPPED"
	StateError   State = "ERROR"
)

// Terminal reports whether no further transition is allowed from s.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateError
}

// canTransition encodes the status state machine. RUNNING -> RUNNING is
// allowed so progress messages can be updated.
func canTransition(from, to State) bool {
	switch from {
	case StateRunning:
		return to == StateRunning || to == StateStopped || to == StateError
	case StateWaiting:
		return to == StateStopped
	default:
		return false
	}
}

// RunStatus is the progress of one instance within a run.
type RunStatus struct {
	RunID     string    `json:"run_id"`
	BotID     string    `json:"bot_id"`
	Instance  string    `json:"instance_name"`
	Script    string    `json:"script_name"`
	State     State     `json:"state"`
	Message   string    `json:"last_message"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InstanceBinding attaches an emulator instance to a bot.
type InstanceBinding struct {
	InstanceName string   `json:"instance_name" yaml:"instance_name"`
	AccountIDs   []string `json:"account_ids,omitempty" yaml:"account_ids,omitempty"`
}

// ScriptRef names a script in a bot's schedule.
type ScriptRef struct {
	ScriptName string `json:"script_name"`
	Enabled    bool   `json:"enabled"`
}

// UnmarshalJSON defaults Enabled to true when the field is absent.
func (r *ScriptRef) UnmarshalJSON(data []byte) error {
	var aux struct {
		ScriptName string `json:"script_name"`
		Enabled    *bool  `json:"enabled"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.ScriptName = aux.ScriptName
	r.Enabled = aux.Enabled == nil || *aux.Enabled
	return nil
}

// BotProfile is a named schedule of scripts over a set of instances.
type BotProfile struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Game               string            `json:"game,omitempty"`
	Instances          []InstanceBinding `json:"instances"`
	Scripts            []ScriptRef       `json:"scripts"`
	RunParallel        bool              `json:"run_parallel"`
	InstanceCooldownMS int64             `json:"instance_cooldown_ms"`
	Overrides          map[string]any    `json:"overrides,omitempty"`
}

// NewBotProfile returns a bot with a fresh id and default cooldown.
func NewBotProfile(name string) *BotProfile {
	return &BotProfile{
		ID:                 GenerateID(),
		Name:               name,
		InstanceCooldownMS: DefaultInstanceCooldown.Milliseconds(),
		Overrides:          make(map[string]any),
	}
}

// UnmarshalJSON applies the default cooldown when the field is absent.
func (b *BotProfile) UnmarshalJSON(data []byte) error {
	type botAlias BotProfile
	aux := struct {
		*botAlias
		Cooldown *int64 `json:"instance_cooldown_ms"`
	}{botAlias: (*botAlias)(b)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	b.InstanceCooldownMS = DefaultInstanceCooldown.Milliseconds()
	if aux.Cooldown != nil {
		b.InstanceCooldownMS = *aux.Cooldown
	}
	return nil
}

// Cooldown returns the delay between starting consecutive instances.
func (b *BotProfile) Cooldown() time.Duration {
	return time.Duration(b.InstanceCooldownMS) * time.Millisecond
}

// EnabledScripts returns the enabled refs in schedule order.
func (b *BotProfile) EnabledScripts() []ScriptRef {
	var out []ScriptRef
	for _, ref := range b.Scripts {
		if ref.Enabled {
			out = append(out, ref)
		}
	}
	return out
}

// DeepCopy returns an independent copy of the bot.
func (b *BotProfile) DeepCopy() *BotProfile {
	if b == nil {
		return nil
	}
	cpy := *b
	if b.Instances != nil {
		cpy.Instances = make([]InstanceBinding, len(b.Instances))
		for i, in := range b.Instances {
			cpy.Instances[i] = in
			cpy.Instances[i].AccountIDs = append([]string(nil), in.AccountIDs...)
		}
	}
	cpy.Scripts = append([]ScriptRef(nil), b.Scripts...)
	if b.Overrides != nil {
		cpy.Overrides = make(map[string]any, len(b.Overrides))
		for k, v := range b.Overrides {
			cpy.Overrides[k] = v
		}
	}
	return &cpy
}

// Validate checks the bot for structural problems.
func (b *BotProfile) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidBot)
	}
	if b.InstanceCooldownMS < 0 {
		return fmt.Errorf("%w: instance_cooldown_ms must not be negative", ErrInvalidBot)
	}
	for i, in := range b.Instances {
		if strings.TrimSpace(in.InstanceName) == "" {
			return fmt.Errorf("%w: instance %d: name is required", ErrInvalidBot, i)
		}
	}
	for i, ref := range b.Scripts {
		if strings.TrimSpace(ref.ScriptName) == "" {
			return fmt.Errorf("%w: script %d: name is required", ErrInvalidBot, i)
		}
	}
	return nil
}

// DecodeBot parses a JSON bot profile. A missing id is generated.
func DecodeBot(data []byte) (*BotProfile, error) {
	var b BotProfile
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBot, err)
	}
	if b.ID == "" {
		b.ID = GenerateID()
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// DecodeBotYAML parses a YAML bot profile through the JSON decoder.
func DecodeBotYAML(data []byte) (*BotProfile, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing YAML: %w", ErrInvalidBot, err)
	}
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: converting YAML: %w", ErrInvalidBot, err)
	}
	return DecodeBot(jsonData)
}

// GenerateID creates a new UUID for a run or bot.
func GenerateID() string {
	return uuid.New().String()
}
