// Package runner schedules bot profiles onto emulator instances.
//
// A bot names a set of instances and an ordered list of scripts. Start
// reserves each instance in the instance registry, then drives every
// reserved instance through the bot's enabled scripts one after another on
// the script engine. Progress is tracked as one RunStatus per instance.
//
// Status lifecycle:
//
//	RUNNING ──▶ STOPPED   (completed, interrupted or stopped by user)
//	   │
//	   └──────▶ ERROR     (script missing or failed)
//
//	WAITING ──▶ STOPPED   (instance was busy; never retried)
//
// STOPPED and ERROR are terminal.
//
// # Thread Safety
//
// Service is safe for concurrent use. Observers are called synchronously
// from the goroutine that changed the status and must not block.
package runner
