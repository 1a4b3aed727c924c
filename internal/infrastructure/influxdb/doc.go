// Package influxdb records emubot run telemetry in InfluxDB.
//
// It wraps influxdb-client-go v2 with connection management, batched
// non-blocking writes and health checks.
//
// # Measurements
//
//	step        tags: bot_id, instance, type
//	            fields: run_id, duration_ms, failed (0/1)
//	run_status  tags: bot_id, instance, state
//	            fields: run_id, script, message
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteStepMetric(influxdb.StepSample{RunID: id, StepType: "TAP", Duration: d})
//
// Write failures surface asynchronously through SetOnError.
package influxdb
