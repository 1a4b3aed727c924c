// Package script provides the step interpreter and execution engine for emubot.
//
// A Script is an ordered list of steps authored as a JSON or YAML document.
// Steps drive one emulator instance through a small set of capabilities
// (Device, Matcher, TextReader, Logger) and share a per-run variable map that
// string parameters read through ${name} substitution.
//
// Architecture:
//
//	┌────────────────────────────────────────────────────────┐
//	│                   Engine (engine.go)                    │
//	│  One worker goroutine per (run id, instance)            │
//	│  ┌──────────────┐    ┌──────────────┐                   │
//	│  │   Decoder    │───▶│    Script    │                   │
//	│  │ (decode.go)  │    │  (types.go)  │                   │
//	│  └──────────────┘    └──────────────┘                   │
//	│        │                                                │
//	│        ▼                                                │
//	│  ┌─────────────────────────────────────────────┐        │
//	│  │  Execution Pipeline                          │        │
//	│  │  1. Copy initial variables into RunContext   │        │
//	│  │  2. For each step: check cancellation        │        │
//	│  │  3. Execute step against the capabilities    │        │
//	│  │  4. Exit ends the run cleanly                │        │
//	│  │  5. Any other error fails the run            │        │
//	│  └─────────────────────────────────────────────┘        │
//	└────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Step: one executable action; concrete kinds are TapStep, SwipeStep,
//     ScrollStep, WaitStep, InputTextStep, IfImageStep, LoopStep, OcrReadStep,
//     LogStep, ExitStep and CustomCodeStep
//   - Script: named step sequence plus variable declarations
//   - RunSpec: one script bound to a run id, bot and instance
//   - RunContext: mutable per-run state handed to every step
//   - Engine: runs RunSpecs asynchronously with cooperative cancellation
//
// # Thread Safety
//
// Steps are immutable once decoded, so one Script may run on several
// instances at the same time. RunContext is owned by a single worker.
// Engine is safe for concurrent use.
//
// # Usage
//
//	eng := script.NewEngine(script.Capabilities{
//	    Device:  adbClient,
//	    Matcher: matcher,
//	    Reader:  tesseract,
//	    Lang:    "eng",
//	}, log)
//
//	exec, err := eng.RunAsync(&script.RunSpec{
//	    RunID:    runID,
//	    Instance: "emulator-5554",
//	    Script:   s,
//	})
//	<-exec.Done()
//	res := exec.Result()
package script
