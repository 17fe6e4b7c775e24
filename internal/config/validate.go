package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate checks the config for invalid values and returns all errors
// found. Dangerous values that would break capture loops are clamped to
// safe defaults; other findings are logged as warnings but do not
// prevent startup.
func (c *Config) Validate() []error {
	var errs []error

	if c.Output < -1 {
		errs = append(errs, fmt.Errorf("output %d is invalid, using primary", c.Output))
		c.Output = -1
	}

	// Clamp the acquisition budget: zero would make every capture a
	// single non-blocking poll.
	if c.TimeoutMs < 1 {
		errs = append(errs, fmt.Errorf("timeout_ms %d is below minimum 1, clamping", c.TimeoutMs))
		c.TimeoutMs = 1
	} else if c.TimeoutMs > 60000 {
		errs = append(errs, fmt.Errorf("timeout_ms %d exceeds maximum 60000, clamping", c.TimeoutMs))
		c.TimeoutMs = 60000
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	if c.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
			errs = append(errs, fmt.Errorf("listen_addr %q is not host:port: %w", c.ListenAddr, err))
		}
	}

	if c.Quality < 1 {
		errs = append(errs, fmt.Errorf("quality %d is below minimum 1, clamping", c.Quality))
		c.Quality = 1
	} else if c.Quality > 100 {
		errs = append(errs, fmt.Errorf("quality %d exceeds maximum 100, clamping", c.Quality))
		c.Quality = 100
	}

	if c.ScaleFactor < 0.1 {
		errs = append(errs, fmt.Errorf("scale_factor %g is below minimum 0.1, clamping", c.ScaleFactor))
		c.ScaleFactor = 0.1
	} else if c.ScaleFactor > 1.0 {
		errs = append(errs, fmt.Errorf("scale_factor %g exceeds maximum 1.0, clamping", c.ScaleFactor))
		c.ScaleFactor = 1.0
	}

	if c.MaxFPS < 1 {
		errs = append(errs, fmt.Errorf("max_fps %d is below minimum 1, clamping", c.MaxFPS))
		c.MaxFPS = 1
	} else if c.MaxFPS > 120 {
		errs = append(errs, fmt.Errorf("max_fps %d exceeds maximum 120, clamping", c.MaxFPS))
		c.MaxFPS = 120
	}

	for _, err := range errs {
		slog.Warn("config validation", "error", err)
	}

	return errs
}
