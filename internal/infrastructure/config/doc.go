// Package config handles loading and validating emubot configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with EMUBOT_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token, JWT secret) should be
//     set via environment variables
//   - An empty security.jwt.secret leaves the HTTP API unauthenticated; bind
//     api.host to loopback in that case
//
// Usage:
//
//	cfg, err := config.Load(config.ResolvePath(""))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.ADBPath)
package config
