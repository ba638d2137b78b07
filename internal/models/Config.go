// Package models defines the core data structures for the cpmgmt client.
// It includes the YAML configuration model, the Response value returned by
// every management API call, and the playbook model used by the CLI.
package models

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Configuration defaults.
const (
	DefaultMgmtPort        = "443"
	DefaultConnectTimeout  = 30 * time.Second
	DefaultSessionTimeout  = 600
	DefaultMetricsURI      = "/metrics"
	DefaultServerHost      = "0.0.0.0"
	DefaultSamplingRate    = 1.0
	WebAPIPath             = "/web_api/"
	connectTimeoutFallback = "30s"
)

// Config represents the complete application configuration for cpmgmt.
// It groups the management server connection, session behaviour, audit
// logging, the optional metrics server and OpenTelemetry settings.
type Config struct {
	MgmtServer struct {
		Host               string `yaml:"host"`
		Port               string `yaml:"port"`
		Domain             string `yaml:"domain"`
		Certificate        string `yaml:"certificate"`
		AcceptInvalidCerts bool   `yaml:"acceptInvalidCerts"`
		Proxy              string `yaml:"proxy"`
		ConnectTimeout     string `yaml:"connectTimeout"`
	} `yaml:"mgmtserver"`
	Session struct {
		User                string `yaml:"user"`
		Password            string `yaml:"password"`
		Timeout             int    `yaml:"timeout"`
		ReadOnly            bool   `yaml:"readOnly"`
		ContinueLastSession bool   `yaml:"continueLastSession"`
		WaitForTask         *bool  `yaml:"waitForTask"`
	} `yaml:"session"`
	Audit struct {
		LogFile      string `yaml:"logFile"`
		ShowPassword bool   `yaml:"showPassword"`
	} `yaml:"audit"`
	Server struct {
		Host            string `yaml:"host"`
		Port            string `yaml:"port"`
		URI             string `yaml:"uri"`
		LogName         string `yaml:"logName"`
		MetricsTextfile string `yaml:"metricsTextfile"`
	} `yaml:"server"`
	OpenTelemetry struct {
		Enabled      bool    `yaml:"enabled"`
		Endpoint     string  `yaml:"endpoint"`
		Insecure     bool    `yaml:"insecure"`
		SamplingRate float64 `yaml:"samplingRate"`
	} `yaml:"opentelemetry"`
}

// SetDefaults sets default values for optional configuration fields.
// It is called automatically by Validate() before validation checks.
func (c *Config) SetDefaults() {
	if c.MgmtServer.Port == "" {
		c.MgmtServer.Port = DefaultMgmtPort
	}
	if c.MgmtServer.ConnectTimeout == "" {
		c.MgmtServer.ConnectTimeout = connectTimeoutFallback
	}
	if c.Session.Timeout == 0 {
		c.Session.Timeout = DefaultSessionTimeout
	}
	if c.Session.WaitForTask == nil {
		wait := true
		c.Session.WaitForTask = &wait
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultServerHost
	}
	if c.Server.URI == "" {
		c.Server.URI = DefaultMetricsURI
	}
	if c.OpenTelemetry.Enabled && c.OpenTelemetry.SamplingRate == 0 {
		c.OpenTelemetry.SamplingRate = DefaultSamplingRate
	}
}

// Validate checks if the configuration is valid and returns an error if not.
// It validates:
//   - Management server host and port range (1-65535)
//   - Connect timeout duration and session timeout
//   - Proxy URL scheme (http/https)
//   - Metrics server port when set
//   - OpenTelemetry endpoint and sampling rate when enabled
func (c *Config) Validate() error {
	c.SetDefaults()

	if c.MgmtServer.Host == "" {
		return errors.New("management server host is required")
	}
	if port, err := strconv.Atoi(c.MgmtServer.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid management server port: %s", c.MgmtServer.Port)
	}
	if d, err := time.ParseDuration(c.MgmtServer.ConnectTimeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid connect timeout: %s", c.MgmtServer.ConnectTimeout)
	}
	if c.Session.Timeout < 0 {
		return fmt.Errorf("invalid session timeout: %d", c.Session.Timeout)
	}

	if c.MgmtServer.Proxy != "" {
		u, err := url.Parse(c.MgmtServer.Proxy)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid proxy URL: %s (must be http or https)", c.MgmtServer.Proxy)
		}
	}

	if c.Server.Port != "" {
		if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("invalid server port: %s", c.Server.Port)
		}
	}

	if c.OpenTelemetry.Enabled {
		if c.OpenTelemetry.Endpoint == "" {
			return errors.New("OpenTelemetry endpoint is required when enabled")
		}
		if c.OpenTelemetry.SamplingRate < 0 || c.OpenTelemetry.SamplingRate > 1 {
			return fmt.Errorf("invalid OpenTelemetry sampling rate: %v (must be between 0.0 and 1.0)", c.OpenTelemetry.SamplingRate)
		}
	}

	return nil
}

// GetMgmtBaseURL returns the base URL of the management server.
// Format: https://host:port
func (c *Config) GetMgmtBaseURL() string {
	return fmt.Sprintf("https://%s:%s", c.MgmtServer.Host, c.MgmtServer.Port)
}

// BuildURL returns the web API endpoint for a command.
//
// Example: "https://192.168.1.10:443/web_api/show-hosts"
func (c *Config) BuildURL(command string) string {
	return c.GetMgmtBaseURL() + WebAPIPath + command
}

// GetConnectTimeout parses the connect timeout, falling back to the default
// when the value is empty or invalid.
func (c *Config) GetConnectTimeout() time.Duration {
	d, err := time.ParseDuration(c.MgmtServer.ConnectTimeout)
	if err != nil || d <= 0 {
		return DefaultConnectTimeout
	}
	return d
}

// ShouldWaitForTask reports whether calls returning a task-id are polled to
// completion. Defaults to true when unset.
func (c *Config) ShouldWaitForTask() bool {
	return c.Session.WaitForTask == nil || *c.Session.WaitForTask
}

// GetServerAddress returns the metrics server bind address.
// Format: host:port
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsMetricsServerEnabled reports whether the metrics HTTP server should run.
func (c *Config) IsMetricsServerEnabled() bool {
	return c.Server.Port != ""
}

// IsOTelEnabled reports whether OpenTelemetry tracing is configured.
func (c *Config) IsOTelEnabled() bool {
	return c.OpenTelemetry.Enabled
}

// MaskPassword returns a masked version of the session password for safe logging.
func (c *Config) MaskPassword() string {
	if c.Session.Password == "" {
		return ""
	}
	return "****"
}
