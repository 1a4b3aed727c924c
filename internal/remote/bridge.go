package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/emubot-core/internal/audit"
	"github.com/nerrad567/emubot-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/emubot-core/internal/runner"
)

const (
	defaultQueueSize = 256
	botLookupTimeout = 5 * time.Second

	commandQoS byte = 1
)

// Client is the broker connection the bridge needs. *mqtt.Client satisfies it.
type Client interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// BotSource resolves stored bot profiles.
type BotSource interface {
	Bot(ctx context.Context, id string) (*runner.BotProfile, error)
}

// Runner starts and stops bot runs.
type Runner interface {
	Start(bot *runner.BotProfile) string
	Stop(runID string)
}

// Stopper cancels in-flight script executions of a run.
type Stopper interface {
	Stop(runID string)
}

// Auditor records operator commands received over MQTT.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Bridge.
type Options struct {
	Client Client
	Bots   BotSource
	Runner Runner

	// Engine, when set, is stopped alongside the runner on a stop command.
	Engine Stopper

	// Audit, when set, records start and stop commands.
	Audit Auditor

	// QoS for status publishes. Default: 1
	QoS byte

	// QueueSize bounds pending status publishes. Default: 256
	QueueSize int

	Logger Logger
}

// StartCommand is the optional payload of a bot start command.
type StartCommand struct {
	RequestID string `json:"request_id,omitempty"`
}

// Bridge connects the runner to MQTT. It implements runner.StatusObserver.
type Bridge struct {
	client Client
	bots   BotSource
	runner Runner
	engine Stopper
	audit  Auditor
	qos    byte
	logger Logger

	topics mqtt.Topics

	queue    chan runner.RunStatus
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	ctx       context.Context
	ctxCancel context.CancelFunc
}

// NewBridge validates opts and returns an idle Bridge; call Start to begin.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Client == nil || opts.Bots == nil || opts.Runner == nil {
		return nil, fmt.Errorf("%w: client, bots and runner are required", ErrMissingDependency)
	}

	qos := opts.QoS
	if qos == 0 {
		qos = 1
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		client:    opts.Client,
		bots:      opts.Bots,
		runner:    opts.Runner,
		engine:    opts.Engine,
		audit:     opts.Audit,
		qos:       qos,
		logger:    logger,
		queue:     make(chan runner.RunStatus, size),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: cancel,
	}, nil
}

// Start subscribes to the command topics and starts the status publisher.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.client.Subscribe(b.topics.AllBotStarts(), commandQoS, b.handleBotStart); err != nil {
		return fmt.Errorf("subscribe to bot start commands: %w", err)
	}
	if err := b.client.Subscribe(b.topics.AllRunStops(), commandQoS, b.handleRunStop); err != nil {
		return fmt.Errorf("subscribe to run stop commands: %w", err)
	}

	b.wg.Add(1)
	go b.publishLoop(ctx)

	b.logger.Info("remote bridge started",
		"start_topic", b.topics.AllBotStarts(),
		"stop_topic", b.topics.AllRunStops())
	return nil
}

// Stop unsubscribes, drains queued statuses and stops the publisher.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		if b.client.IsConnected() {
			for _, topic := range []string{b.topics.AllBotStarts(), b.topics.AllRunStops()} {
				if err := b.client.Unsubscribe(topic); err != nil {
					b.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
				}
			}
		}
		close(b.done)
		b.wg.Wait()
		b.logger.Info("remote bridge stopped")
	})
}

// StatusChanged queues st for publishing. It never blocks; when the queue
// is full the status is dropped and a warning logged.
func (b *Bridge) StatusChanged(st runner.RunStatus) {
	select {
	case <-b.done:
		return
	default:
	}

	select {
	case b.queue <- st:
	default:
		b.logger.Warn("status queue full, dropping update",
			"run_id", st.RunID,
			"instance", st.Instance,
			"state", st.State)
	}
}

func (b *Bridge) publishLoop(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case st := <-b.queue:
			b.publishStatus(st)
		case <-ctx.Done():
			b.drain()
			return
		case <-b.done:
			b.drain()
			return
		}
	}
}

// drain publishes whatever is still queued.
func (b *Bridge) drain() {
	for {
		select {
		case st := <-b.queue:
			b.publishStatus(st)
		default:
			return
		}
	}
}

func (b *Bridge) publishStatus(st runner.RunStatus) {
	payload, err := json.Marshal(st)
	if err != nil {
		b.logger.Error("encoding run status", "run_id", st.RunID, "error", err)
		return
	}
	topic := b.topics.RunStatus(st.RunID, st.Instance)
	if err := b.client.Publish(topic, payload, b.qos, true); err != nil {
		b.logger.Warn("publishing run status failed", "topic", topic, "error", err)
		return
	}
	b.logger.Debug("run status published", "topic", topic, "state", st.State)
}

// handleBotStart looks up the bot and starts it.
func (b *Bridge) handleBotStart(topic string, payload []byte) error {
	botID, ok := b.topics.ParseBotStart(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}

	var cmd StartCommand
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("parsing start command for bot %s: %w", botID, err)
		}
	}

	ctx, cancel := context.WithTimeout(b.ctx, botLookupTimeout)
	defer cancel()

	bot, err := b.bots.Bot(ctx, botID)
	if err != nil {
		return fmt.Errorf("starting bot %s: %w", botID, err)
	}

	runID := b.runner.Start(bot)
	b.logger.Info("bot started from MQTT",
		"bot_id", botID,
		"run_id", runID,
		"request_id", cmd.RequestID)
	b.record(audit.ActionStart, audit.EntityBot, botID, map[string]any{"run_id": runID, "request_id": cmd.RequestID})
	return nil
}

// handleRunStop stops the run in the runner and the engine.
func (b *Bridge) handleRunStop(topic string, _ []byte) error {
	runID, ok := b.topics.ParseRunStop(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}

	b.runner.Stop(runID)
	if b.engine != nil {
		b.engine.Stop(runID)
	}
	b.logger.Info("run stopped from MQTT", "run_id", runID)
	b.record(audit.ActionStop, audit.EntityRun, runID, nil)
	return nil
}

func (b *Bridge) record(action, entityType, entityID string, details map[string]any) {
	if b.audit == nil {
		return
	}
	b.audit.Record(b.ctx, audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Source:     audit.SourceMQTT,
		Details:    details,
	})
}
