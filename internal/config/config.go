// Package config resolves and validates this service's environment and
// CLI-flag configuration, following the teacher's accumulate-all-errors
// validation shape rather than failing on the first bad variable.
package config

import (
	"flag"
	"fmt"
	"runtime"
	"strings"
)

type MonitoringMode string

const (
	MonitoringSecure      MonitoringMode = "secure"
	MonitoringUnsecure    MonitoringMode = "unsecure"
	MonitoringNone        MonitoringMode = "no-monitoring"
	defaultWsPort                        = 8000
	defaultConsumersPerWk                = 500
	MonitorFixedPort                     = 12346
)

// Config holds the server's validated configuration.
type Config struct {
	Monitoring  MonitoringMode
	Port        int
	MaxWorkers  int
	Consumers   int
	PublicIP    string // empty means loopback-only, no announced address
	TLSMode     int
	TLSCertPath string
	TLSKeyPath  string

	// tlsModeInvalid records a malformed TLS_MODE value. Per spec §7 this
	// is a configuration failure that falls back to non-TLS rather than
	// aborting startup, so it is never added to ParseFlags' accumulated
	// errors — the caller logs it via TLSModeInvalid/TLSModeError instead.
	tlsModeInvalid bool
	tlsModeRaw     string
}

// ParseFlags parses the server CLI flags from args (typically os.Args[1:])
// and resolves environment variables via getenv (typically os.Getenv),
// then validates the result, accumulating every error before returning.
func ParseFlags(args []string, getenv func(string) string) (*Config, error) {
	fs := flag.NewFlagSet("sfu", flag.ContinueOnError)
	monitoring := fs.String("monitoring", string(MonitoringSecure), "monitor mode: secure|unsecure|no-monitoring")
	port := fs.Int("port", defaultWsPort, "WebSocket listen port")
	maxWorkers := fs.Int("max-workers", 0, "maximum media workers (0 = logical CPU count)")
	consumers := fs.Int("consumers", defaultConsumersPerWk, "advisory per-worker consumer cap")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:      *port,
		Consumers: *consumers,
		PublicIP:  getenv("PUBLIC_IP"),
	}

	var errs []string

	switch MonitoringMode(*monitoring) {
	case MonitoringSecure, MonitoringUnsecure, MonitoringNone:
		cfg.Monitoring = MonitoringMode(*monitoring)
	default:
		errs = append(errs, fmt.Sprintf("--monitoring must be one of secure|unsecure|no-monitoring (got %q)", *monitoring))
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, fmt.Sprintf("--port must be between 1 and 65535 (got %d)", cfg.Port))
	}

	if *maxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	} else if *maxWorkers > runtime.NumCPU() {
		cfg.MaxWorkers = runtime.NumCPU()
	} else {
		cfg.MaxWorkers = *maxWorkers
	}

	if cfg.Consumers < 1 {
		errs = append(errs, fmt.Sprintf("--consumers must be positive (got %d)", cfg.Consumers))
	}

	tlsModeRaw := getenv("TLS_MODE")
	tlsMode, tlsErr := parseTLSMode(tlsModeRaw)
	if tlsErr != nil {
		// A malformed TLS_MODE is a configuration failure, not a fatal
		// one: it falls back to non-TLS rather than failing ParseFlags.
		cfg.tlsModeInvalid = true
		cfg.tlsModeRaw = tlsModeRaw
		tlsMode = 0
	}
	cfg.TLSMode = tlsMode
	cfg.TLSCertPath = getenv("TLS_CERT_PATH")
	cfg.TLSKeyPath = getenv("TLS_KEY_PATH")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return cfg, nil
}

func parseTLSMode(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	var mode int
	if _, err := fmt.Sscanf(raw, "%d", &mode); err != nil {
		return 0, fmt.Errorf("TLS_MODE must be an integer (got %q)", raw)
	}
	return mode, nil
}

// TLSEnabled reports whether this config requests TLS AND has both paths
// available. A request without both paths does not fail startup; the
// server instead falls back to plain TCP and logs the degraded config —
// see ServerFacade.
func (c *Config) TLSEnabled() bool {
	return c.TLSMode > 0 && c.TLSCertPath != "" && c.TLSKeyPath != ""
}

// TLSRequestedButUnavailable reports the degraded-config case: TLS was
// asked for but one of the cert/key paths is missing.
func (c *Config) TLSRequestedButUnavailable() bool {
	return c.TLSMode > 0 && (c.TLSCertPath == "" || c.TLSKeyPath == "")
}

// TLSModeInvalid reports whether TLS_MODE could not be parsed as an
// integer. TLSMode has already been reset to 0 (TLS disabled) in this
// case; the caller is expected to log TLSModeError and continue.
func (c *Config) TLSModeInvalid() bool { return c.tlsModeInvalid }

// TLSModeError describes the malformed TLS_MODE value, for logging.
func (c *Config) TLSModeError() string {
	return fmt.Sprintf("TLS_MODE must be an integer (got %q), falling back to non-TLS", c.tlsModeRaw)
}

// AnnouncedIP returns the ICE-announced address, empty when PUBLIC_IP is
// unset (loopback-only, no announced address).
func (c *Config) AnnouncedIP() string { return c.PublicIP }

// ListenAllInterfaces reports whether the WebRTC server should bind
// 0.0.0.0 instead of loopback.
func (c *Config) ListenAllInterfaces() bool { return c.PublicIP != "" }
