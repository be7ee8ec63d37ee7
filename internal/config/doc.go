// Package config provides configuration loading and validation for tinyweb.
//
// Configuration is loaded with the following precedence (highest to lowest):
//  1. Environment variables (TINYWEB_PORT, TINYWEB_ROOTS, etc.)
//  2. JSON config file (/etc/tinyweb/config.json or ~/.config/tinyweb/config.json)
//  3. Built-in defaults
//
// Key configuration fields:
//   - Listen, Port     - bind address (loopback by default)
//   - AllowRemote      - accept unauthenticated remote clients
//   - Roots            - ordered list of directories and archives to serve
//   - HandlerSuffix    - file suffix that marks a handler script
//   - MaxLoopbackDepth - nesting bound for internal requests
//
// Example usage:
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
