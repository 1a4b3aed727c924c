package catalog

import (
	"time"

	"github.com/nerrad567/emubot-core/internal/runner"
	"github.com/nerrad567/emubot-core/internal/script"
)

// ScriptRecord is a stored script document.
type ScriptRecord struct {
	Script    *script.Script `json:"script"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// DeepCopy returns an independent copy of the record.
func (r *ScriptRecord) DeepCopy() *ScriptRecord {
	if r == nil {
		return nil
	}
	cpy := *r
	cpy.Script = r.Script.DeepCopy()
	return &cpy
}

// BotRecord is a stored bot profile.
type BotRecord struct {
	Bot       *runner.BotProfile `json:"bot"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// DeepCopy returns an independent copy of the record.
func (r *BotRecord) DeepCopy() *BotRecord {
	if r == nil {
		return nil
	}
	cpy := *r
	cpy.Bot = r.Bot.DeepCopy()
	return &cpy
}
