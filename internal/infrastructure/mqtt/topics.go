package mqtt

import (
	"fmt"
	"strings"
)

// Topic roots for the emubot topic tree.
//
//	emubot/run/{run_id}/{instance}/status      retained RunStatus JSON
//	emubot/command/bot/{bot_id}/start          start a stored bot profile
//	emubot/command/run/{run_id}/stop           stop a run
//	emubot/system/status                       online/offline (LWT)
const (
	TopicRoot          = "emubot"
	TopicPrefixRun     = TopicRoot + "/run"
	TopicPrefixCommand = TopicRoot + "/command"
	TopicPrefixSystem  = TopicRoot + "/system"
)

// Topics provides builders for emubot MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.RunStatus("3f2a...", "Instance 1")
//	// Returns: "emubot/run/3f2a.../Instance 1/status"
type Topics struct{}

// Segment makes a value safe to use as one topic level. Separators and
// wildcard characters are replaced with '_' and an empty value becomes '_'.
func Segment(value string) string {
	if value == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', 0:
			return '_'
		}
		return r
	}, value)
}

// RunStatus returns the retained status topic of one instance in a run.
//
// Example: emubot/run/3f2a/Instance 1/status
func (Topics) RunStatus(runID, instance string) string {
	return fmt.Sprintf("%s/%s/%s/status", TopicPrefixRun, Segment(runID), Segment(instance))
}

// BotStart returns the command topic that starts a bot profile.
//
// Example: emubot/command/bot/9c1e/start
func (Topics) BotStart(botID string) string {
	return fmt.Sprintf("%s/bot/%s/start", TopicPrefixCommand, Segment(botID))
}

// RunStop returns the command topic that stops a run.
//
// Example: emubot/command/run/3f2a/stop
func (Topics) RunStop(runID string) string {
	return fmt.Sprintf("%s/run/%s/stop", TopicPrefixCommand, Segment(runID))
}

// SystemStatus returns the online/offline topic used for the LWT.
//
// Example: emubot/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllRunStatuses matches every run status topic.
//
// Pattern: emubot/run/+/+/status
func (Topics) AllRunStatuses() string {
	return fmt.Sprintf("%s/+/+/status", TopicPrefixRun)
}

// AllBotStarts matches every bot start command.
//
// Pattern: emubot/command/bot/+/start
func (Topics) AllBotStarts() string {
	return fmt.Sprintf("%s/bot/+/start", TopicPrefixCommand)
}

// AllRunStops matches every run stop command.
//
// Pattern: emubot/command/run/+/stop
func (Topics) AllRunStops() string {
	return fmt.Sprintf("%s/run/+/stop", TopicPrefixCommand)
}

// AllTopics matches the whole emubot tree.
func (Topics) AllTopics() string {
	return TopicRoot + "/#"
}

// ParseBotStart extracts the bot id from a bot start topic.
func (Topics) ParseBotStart(topic string) (string, bool) {
	return middleLevel(topic, TopicPrefixCommand+"/bot/", "/start")
}

// ParseRunStop extracts the run id from a run stop topic.
func (Topics) ParseRunStop(topic string) (string, bool) {
	return middleLevel(topic, TopicPrefixCommand+"/run/", "/stop")
}

// middleLevel returns the single level between prefix and suffix.
func middleLevel(topic, prefix, suffix string) (string, bool) {
	if !strings.HasPrefix(topic, prefix) || !strings.HasSuffix(topic, suffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(topic, prefix), suffix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
