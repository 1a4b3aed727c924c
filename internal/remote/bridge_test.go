package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/emubot-core/internal/audit"
	"github.com/nerrad567/emubot-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/emubot-core/internal/instance"
	"github.com/nerrad567/emubot-core/internal/runner"
	"github.com/nerrad567/emubot-core/internal/script"
)

// ─── Fakes ──────────────────────────────────────────────────────────

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakeClient struct {
	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	published    []published
	unsubscribed []string
	subErr       error
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (c *fakeClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic, payload, qos, retained})
	return nil
}

func (c *fakeClient) Subscribe(topic string, _ byte, h mqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subErr != nil {
		return c.subErr
	}
	c.handlers[topic] = h
	return nil
}

func (c *fakeClient) Unsubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, topic)
	delete(c.handlers, topic)
	return nil
}

func (c *fakeClient) IsConnected() bool { return true }

// deliver simulates an incoming message on a subscription filter.
func (c *fakeClient) deliver(filter, topic string, payload []byte) error {
	c.mu.Lock()
	h := c.handlers[filter]
	c.mu.Unlock()
	if h == nil {
		return fmt.Errorf("no handler for %s", filter)
	}
	return h(topic, payload)
}

func (c *fakeClient) Published() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.published...)
}

type botMap map[string]*runner.BotProfile

func (m botMap) Bot(_ context.Context, id string) (*runner.BotProfile, error) {
	b, ok := m[id]
	if !ok {
		return nil, errors.New("bot: not found")
	}
	return b, nil
}

type fakeRunner struct {
	mu      sync.Mutex
	started []string
	stopped []string
}

func (r *fakeRunner) Start(bot *runner.BotProfile) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, bot.ID)
	return "run-" + bot.ID
}

func (r *fakeRunner) Stop(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = append(r.stopped, runID)
}

type fakeStopper struct{ stopped []string }

func (s *fakeStopper) Stop(runID string) { s.stopped = append(s.stopped, runID) }

type warnLogger struct {
	noopLogger
	mu    sync.Mutex
	warns []string
}

func (l *warnLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func newTestBridge(t *testing.T) (*Bridge, *fakeClient, *fakeRunner, *fakeStopper) {
	t.Helper()
	client := newFakeClient()
	run := &fakeRunner{}
	stop := &fakeStopper{}
	b, err := NewBridge(Options{
		Client: client,
		Bots:   botMap{"bot-1": {ID: "bot-1", Name: "Farm"}},
		Runner: run,
		Engine: stop,
	})
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(b.Stop)
	return b, client, run, stop
}

// ─── Construction ───────────────────────────────────────────────────

func TestNewBridge_MissingDependency(t *testing.T) {
	_, err := NewBridge(Options{Client: newFakeClient()})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestStart_SubscribeFailure(t *testing.T) {
	client := newFakeClient()
	client.subErr = errors.New("denied")
	b, err := NewBridge(Options{Client: client, Bots: botMap{}, Runner: &fakeRunner{}})
	require.NoError(t, err)

	assert.Error(t, b.Start(context.Background()))
}

func TestStart_Subscribes(t *testing.T) {
	_, client, _, _ := newTestBridge(t)

	topics := mqtt.Topics{}
	assert.Contains(t, client.handlers, topics.AllBotStarts())
	assert.Contains(t, client.handlers, topics.AllRunStops())
}

// ─── Commands ───────────────────────────────────────────────────────

func TestBotStartCommand(t *testing.T) {
	_, client, run, _ := newTestBridge(t)
	topics := mqtt.Topics{}

	err := client.deliver(topics.AllBotStarts(), topics.BotStart("bot-1"), []byte(`{"request_id":"req-9"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"bot-1"}, run.started)

	// Empty payloads are accepted.
	require.NoError(t, client.deliver(topics.AllBotStarts(), topics.BotStart("bot-1"), nil))
	assert.Len(t, run.started, 2)
}

func TestBotStartCommand_Errors(t *testing.T) {
	_, client, run, _ := newTestBridge(t)
	topics := mqtt.Topics{}

	assert.Error(t, client.deliver(topics.AllBotStarts(), topics.BotStart("missing"), nil))
	assert.Error(t, client.deliver(topics.AllBotStarts(), topics.BotStart("bot-1"), []byte("{bad")))
	assert.ErrorIs(t, client.deliver(topics.AllBotStarts(), "emubot/command/bot/a/b/start", nil), ErrBadTopic)
	assert.Empty(t, run.started)
}

func TestRunStopCommand(t *testing.T) {
	_, client, run, engine := newTestBridge(t)
	topics := mqtt.Topics{}

	require.NoError(t, client.deliver(topics.AllRunStops(), topics.RunStop("run-7"), nil))
	assert.Equal(t, []string{"run-7"}, run.stopped)
	assert.Equal(t, []string{"run-7"}, engine.stopped)

	assert.ErrorIs(t, client.deliver(topics.AllRunStops(), "emubot/command/run//stop", nil), ErrBadTopic)
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *fakeAuditor) Record(_ context.Context, e audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func TestCommands_Audited(t *testing.T) {
	client := newFakeClient()
	auditor := &fakeAuditor{}
	b, err := NewBridge(Options{
		Client: client,
		Bots:   botMap{"bot-1": {ID: "bot-1", Name: "Farm"}},
		Runner: &fakeRunner{},
		Audit:  auditor,
	})
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(b.Stop)
	topics := mqtt.Topics{}

	require.NoError(t, client.deliver(topics.AllBotStarts(), topics.BotStart("bot-1"), []byte(`{"request_id":"req-1"}`)))
	require.NoError(t, client.deliver(topics.AllRunStops(), topics.RunStop("run-bot-1"), nil))
	require.Error(t, client.deliver(topics.AllBotStarts(), topics.BotStart("missing"), nil))

	require.Len(t, auditor.entries, 2, "failed commands are not audited")
	start, stop := auditor.entries[0], auditor.entries[1]

	assert.Equal(t, audit.ActionStart, start.Action)
	assert.Equal(t, audit.EntityBot, start.EntityType)
	assert.Equal(t, "bot-1", start.EntityID)
	assert.Equal(t, audit.SourceMQTT, start.Source)
	assert.Equal(t, "run-bot-1", start.Details["run_id"])
	assert.Equal(t, "req-1", start.Details["request_id"])

	assert.Equal(t, audit.ActionStop, stop.Action)
	assert.Equal(t, audit.EntityRun, stop.EntityType)
	assert.Equal(t, "run-bot-1", stop.EntityID)
}

// ─── Status publishing ──────────────────────────────────────────────

func TestStatusChanged_PublishesRetained(t *testing.T) {
	b, client, _, _ := newTestBridge(t)

	b.StatusChanged(runner.RunStatus{
		RunID:    "run-1",
		BotID:    "bot-1",
		Instance: "Instance 1",
		Script:   "Daily",
		State:    runner.StateRunning,
		Message:  runner.MsgScheduled,
	})

	require.Eventually(t, func() bool { return len(client.Published()) == 1 }, time.Second, 5*time.Millisecond)

	p := client.Published()[0]
	assert.Equal(t, "emubot/run/run-1/Instance 1/status", p.topic)
	assert.True(t, p.retained)
	assert.Equal(t, byte(1), p.qos)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(p.payload, &doc))
	assert.Equal(t, "RUNNING", doc["state"])
	assert.Equal(t, "Instance 1", doc["instance_name"])
	assert.Equal(t, "Scheduled", doc["last_message"])
}

func TestStop_DrainsQueue(t *testing.T) {
	client := newFakeClient()
	b, err := NewBridge(Options{Client: client, Bots: botMap{}, Runner: &fakeRunner{}})
	require.NoError(t, err)

	// Queue before the publisher runs, then start and stop at once.
	for i := 0; i < 3; i++ {
		b.StatusChanged(runner.RunStatus{RunID: "r", Instance: fmt.Sprintf("i%d", i), State: runner.StateRunning})
	}
	require.NoError(t, b.Start(context.Background()))
	b.Stop()

	assert.Len(t, client.Published(), 3)
	assert.Len(t, client.unsubscribed, 2)

	b.StatusChanged(runner.RunStatus{RunID: "r", Instance: "late"})
	assert.Len(t, client.Published(), 3)
}

func TestStatusChanged_QueueFull(t *testing.T) {
	logger := &warnLogger{}
	b, err := NewBridge(Options{
		Client:    newFakeClient(),
		Bots:      botMap{},
		Runner:    &fakeRunner{},
		QueueSize: 1,
		Logger:    logger,
	})
	require.NoError(t, err)

	b.StatusChanged(runner.RunStatus{RunID: "r", Instance: "a"})
	b.StatusChanged(runner.RunStatus{RunID: "r", Instance: "b"})

	assert.Equal(t, []string{"status queue full, dropping update"}, logger.warns)
}

// ─── End to end with a real runner ──────────────────────────────────

type scriptMap map[string]*script.Script

func (m scriptMap) Script(_ context.Context, name string) (*script.Script, error) {
	s, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("script %q: not found", name)
	}
	return s, nil
}

func TestBridge_RunLifecycle(t *testing.T) {
	engine := script.NewEngine(script.Capabilities{}, nil)
	svc := runner.NewService(engine, instance.NewRegistry(), scriptMap{
		"hello": {Name: "hello", Steps: []script.Step{&script.LogStep{Message: "hi"}}},
	}, nil)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	bot := runner.NewBotProfile("Greeter")
	bot.Instances = []runner.InstanceBinding{{InstanceName: "Instance 1"}}
	bot.Scripts = []runner.ScriptRef{{ScriptName: "hello", Enabled: true}}

	client := newFakeClient()
	b, err := NewBridge(Options{Client: client, Bots: botMap{bot.ID: bot}, Runner: svc, Engine: engine})
	require.NoError(t, err)
	svc.AddObserver(b)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(b.Stop)

	topics := mqtt.Topics{}
	require.NoError(t, client.deliver(topics.AllBotStarts(), topics.BotStart(bot.ID), nil))

	require.Eventually(t, func() bool {
		for _, p := range client.Published() {
			var st runner.RunStatus
			if json.Unmarshal(p.payload, &st) == nil && st.State == runner.StateStopped {
				return st.Message == runner.MsgCompleted
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}
