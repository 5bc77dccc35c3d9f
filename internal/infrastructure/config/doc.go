// Package config handles loading and validating mower bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with MOWERBRIDGE_* environment variables
//   - Validation of required fields
//   - Deriving the cloud broker username and client id from account data
//
// Security Considerations:
//   - The cloud access token and broker passwords should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - Access tokens are never verified locally; the vendor broker does that
//
// Usage:
//
//	cfg, err := config.Load("configs/mowerbridge.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	username, clientID, err := cfg.Cloud.CloudCredentials()
package config
