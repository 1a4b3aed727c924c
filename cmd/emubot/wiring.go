package main

import (
	"github.com/nerrad567/emubot-core/internal/adb"
	"github.com/nerrad567/emubot-core/internal/infrastructure/config"
	"github.com/nerrad567/emubot-core/internal/infrastructure/logging"
	"github.com/nerrad567/emubot-core/internal/instance"
	"github.com/nerrad567/emubot-core/internal/runner"
	"github.com/nerrad567/emubot-core/internal/script"
	"github.com/nerrad567/emubot-core/internal/vision"
)

// core is the execution stack shared by serve and run.
type core struct {
	device    *adb.Client
	engine    *script.Engine
	instances *instance.Registry
	runner    *runner.Service
}

// newCore wires the adb device, vision services, engine, instance registry
// and runner. scripts resolves script names for the runner.
func newCore(cfg *config.Config, scripts runner.ScriptSource, log *logging.Logger) *core {
	device := adb.New(adb.Config{
		Binary:  cfg.Device.ADBPath,
		Serials: cfg.Device.Serials,
		Timeout: cfg.GetDeviceTimeout(),
	}, log.Component("adb"))

	engine := script.NewEngine(script.Capabilities{
		Device:  device,
		Matcher: vision.NewFixedMatcher(cfg.Matcher.Confidence),
		Reader:  vision.NewTesseractReader(cfg.OCR.TesseractPath, cfg.GetOCRTimeout()),
		Lang:    cfg.OCR.Lang,
	}, log.Component("engine"))

	instances := instance.NewRegistry()
	instances.SetLogger(log.Component("instances"))

	return &core{
		device:    device,
		engine:    engine,
		instances: instances,
		runner:    runner.NewService(engine, instances, scripts, log.Component("runner")),
	}
}
