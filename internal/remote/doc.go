// Package remote exposes the runner over MQTT.
//
// The Bridge publishes every RunStatus change as a retained JSON document
// on emubot/run/{run_id}/{instance}/status and accepts two commands:
//
//	emubot/command/bot/{bot_id}/start   start the stored bot profile
//	emubot/command/run/{run_id}/stop    stop every instance of a run
//
// Status publishing goes through a bounded queue drained by one goroutine,
// so the runner never waits on the broker. Updates arriving while the
// queue is full are dropped with a warning.
//
// Commands that succeed are recorded through Options.Audit when it is set.
package remote
