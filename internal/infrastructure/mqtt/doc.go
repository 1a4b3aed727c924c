// Package mqtt provides the broker connection behind emubot's remote
// control bridge.
//
// It manages:
//   - Connection to the broker with auto-reconnect and exponential backoff
//   - Publishing with QoS and size checks
//   - Subscriptions that are restored after a reconnect
//   - A Last Will and Testament on emubot/system/status
//
// # Topics
//
//	emubot/run/{run_id}/{instance}/status      retained RunStatus JSON
//	emubot/command/bot/{bot_id}/start          start a stored bot profile
//	emubot/command/run/{run_id}/stop           stop a run
//	emubot/system/status                       online/offline presence
//
// Topic levels are passed through Segment, so instance names such as
// "Instance 1" are used verbatim while '/', '+' and '#' are replaced.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.RunStatus(id, "Instance 1"), status)
//
// Tests in integration_test.go need a broker on 127.0.0.1:1883 and run with
// -tags=integration.
package mqtt
