// Package config handles loading and validating MOBAflow configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (MOBAFLOW_*)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token, JWT secret) should be
//     set via environment variables
//   - An empty JWT secret leaves the control API open; set one on any
//     network that is not the layout's private LAN
//
// Usage:
//
//	cfg, err := config.Load("configs/mobaflow.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Z21Address())
package config
