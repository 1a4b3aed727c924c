package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBot_Defaults(t *testing.T) {
	b, err := DecodeBot([]byte(`{
		"name": "farm",
		"instances": [{"instance_name": "emu-1"}],
		"scripts": [{"script_name": "a"}, {"script_name": "b", "enabled": false}]
	}`))
	require.NoError(t, err)

	assert.NotEmpty(t, b.ID)
	assert.Equal(t, time.Second, b.Cooldown())
	require.Len(t, b.Scripts, 2)
	assert.True(t, b.Scripts[0].Enabled)
	assert.False(t, b.Scripts[1].Enabled)
	assert.Equal(t, []ScriptRef{{ScriptName: "a", Enabled: true}}, b.EnabledScripts())
}

func TestDecodeBotYAML(t *testing.T) {
	b, err := DecodeBotYAML([]byte(`
id: bot-1
name: farm
run_parallel: true
instance_cooldown_ms: 0
instances:
  - instance_name: emu-1
    account_ids: [acc-1]
scripts:
  - script_name: daily
overrides:
  rounds: 4
`))
	require.NoError(t, err)
	assert.Equal(t, "bot-1", b.ID)
	assert.True(t, b.RunParallel)
	assert.Zero(t, b.Cooldown())
	assert.Equal(t, []string{"acc-1"}, b.Instances[0].AccountIDs)
	assert.Equal(t, float64(4), b.Overrides["rounds"])
}

func TestBotProfile_Validate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(b *BotProfile)
	}{
		{"blank name", func(b *BotProfile) { b.Name = " " }},
		{"negative cooldown", func(b *BotProfile) { b.InstanceCooldownMS = -1 }},
		{"blank instance", func(b *BotProfile) { b.Instances = []InstanceBinding{{}} }},
		{"blank script", func(b *BotProfile) { b.Scripts = []ScriptRef{{Enabled: true}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBotProfile("ok")
			tt.mod(b)
			assert.ErrorIs(t, b.Validate(), ErrInvalidBot)
		})
	}
	assert.NoError(t, NewBotProfile("ok").Validate())
}

func TestBotProfile_DeepCopy(t *testing.T) {
	b := NewBotProfile("x")
	b.Instances = []InstanceBinding{{InstanceName: "emu-1", AccountIDs: []string{"a"}}}
	b.Overrides["k"] = "v"

	cpy := b.DeepCopy()
	cpy.Instances[0].AccountIDs[0] = "changed"
	cpy.Overrides["k"] = "changed"

	assert.Equal(t, "a", b.Instances[0].AccountIDs[0])
	assert.Equal(t, "v", b.Overrides["k"])
}
