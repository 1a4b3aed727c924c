package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementStep      = "step"
	MeasurementRunStatus = "run_status"
)

// StepSample describes one finished script step.
type StepSample struct {
	RunID    string
	BotID    string
	Instance string
	StepType string
	Duration time.Duration
	Failed   bool
	At       time.Time
}

// StatusSample describes one run status transition.
type StatusSample struct {
	RunID    string
	BotID    string
	Instance string
	Script   string
	State    string
	Message  string
	At       time.Time
}

// StepPoint builds the "step" point for s. Run ids are fields, not tags,
// to keep series cardinality bounded.
func StepPoint(s StepSample) *write.Point {
	failed := 0
	if s.Failed {
		failed = 1
	}
	return write.NewPoint(
		MeasurementStep,
		map[string]string{
			"bot_id":   s.BotID,
			"instance": s.Instance,
			"type":     s.StepType,
		},
		map[string]any{
			"run_id":      s.RunID,
			"duration_ms": float64(s.Duration) / float64(time.Millisecond),
			"failed":      failed,
		},
		timestampOrNow(s.At),
	)
}

// StatusPoint builds the "run_status" point for s.
func StatusPoint(s StatusSample) *write.Point {
	return write.NewPoint(
		MeasurementRunStatus,
		map[string]string{
			"bot_id":   s.BotID,
			"instance": s.Instance,
			"state":    s.State,
		},
		map[string]any{
			"run_id":  s.RunID,
			"script":  s.Script,
			"message": s.Message,
		},
		timestampOrNow(s.At),
	)
}

// WriteStepMetric queues a step sample. Writes are non-blocking and are
// dropped while disconnected.
func (c *Client) WriteStepMetric(s StepSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(StepPoint(s))
}

// WriteRunStatus queues a status transition sample.
func (c *Client) WriteRunStatus(s StatusSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(StatusPoint(s))
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
