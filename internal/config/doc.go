// Package config handles configuration loading for grimoire.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from GRIMOIRE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/grimoire/config.yaml
//  3. ~/.config/grimoire/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${GRIMOIRE_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  token_ttl: "24h"
//	  otp_ttl: "10m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Database:
//
//	database:
//	  path: "/var/lib/grimoire/grimoire.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${GRIMOIRE_JWT_SECRET}"  # Required
//	  token_ttl: "24h"                      # Session token lifetime
//	  otp_ttl: "10m"                        # One-time code lifetime
//	  bcrypt_cost: 12                       # 0 selects the bcrypt default
//
// Mail:
//
//	smtp:
//	  host: "smtp.example.com"
//	  port: 587
//	  username: "${SMTP_USERNAME}"
//	  password: "${SMTP_PASSWORD}"
//	  from: "noreply@example.com"
//	  app_name: "Grimoire"
//	  frontend_url: "https://app.example.com"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Database path presence
//   - JWT secret presence
//   - bcrypt cost range (4-31, or 0 for the default)
//   - Duration format validity
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/grimoire/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
