package config

import "testing"

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestParseFlags_Defaults(t *testing.T) {
	cfg, err := ParseFlags(nil, envMap(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != defaultWsPort {
		t.Fatalf("expected default port %d, got %d", defaultWsPort, cfg.Port)
	}
	if cfg.Monitoring != MonitoringSecure {
		t.Fatalf("expected default monitoring mode secure, got %q", cfg.Monitoring)
	}
	if cfg.MaxWorkers <= 0 {
		t.Fatalf("expected positive default max workers, got %d", cfg.MaxWorkers)
	}
	if cfg.TLSEnabled() {
		t.Fatalf("expected TLS disabled by default")
	}
}

func TestParseFlags_RejectsBadPort(t *testing.T) {
	_, err := ParseFlags([]string{"--port=99999"}, envMap(nil))
	if err == nil {
		t.Fatalf("expected validation error for out-of-range port")
	}
}

func TestParseFlags_RejectsBadMonitoringMode(t *testing.T) {
	_, err := ParseFlags([]string{"--monitoring=bogus"}, envMap(nil))
	if err == nil {
		t.Fatalf("expected validation error for bad monitoring mode")
	}
}

func TestParseFlags_TLSRequiresBothPaths(t *testing.T) {
	cfg, err := ParseFlags(nil, envMap(map[string]string{
		"TLS_MODE":      "1",
		"TLS_CERT_PATH": "/tmp/cert.pem",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TLSEnabled() {
		t.Fatalf("expected TLS disabled: key path missing")
	}
	if !cfg.TLSRequestedButUnavailable() {
		t.Fatalf("expected degraded-TLS flag to be set")
	}
}

func TestParseFlags_TLSEnabledWithBothPaths(t *testing.T) {
	cfg, err := ParseFlags(nil, envMap(map[string]string{
		"TLS_MODE":      "1",
		"TLS_CERT_PATH": "/tmp/cert.pem",
		"TLS_KEY_PATH":  "/tmp/key.pem",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.TLSEnabled() {
		t.Fatalf("expected TLS enabled with both paths present")
	}
}

func TestParseFlags_InvalidTLSModeFallsBackNonFatal(t *testing.T) {
	cfg, err := ParseFlags(nil, envMap(map[string]string{"TLS_MODE": "not-a-number"}))
	if err != nil {
		t.Fatalf("expected invalid TLS_MODE to fall back rather than fail ParseFlags, got: %v", err)
	}
	if !cfg.TLSModeInvalid() {
		t.Fatalf("expected TLSModeInvalid to be true")
	}
	if cfg.TLSEnabled() {
		t.Fatalf("expected TLS disabled when TLS_MODE is malformed")
	}
}

func TestParseFlags_PublicIPAnnouncement(t *testing.T) {
	cfg, err := ParseFlags(nil, envMap(map[string]string{"PUBLIC_IP": "203.0.113.5"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.ListenAllInterfaces() {
		t.Fatalf("expected ListenAllInterfaces true when PUBLIC_IP set")
	}
	if cfg.AnnouncedIP() != "203.0.113.5" {
		t.Fatalf("expected announced ip to match PUBLIC_IP")
	}
}

func TestParseFlags_NoPublicIPMeansLoopbackOnly(t *testing.T) {
	cfg, err := ParseFlags(nil, envMap(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAllInterfaces() {
		t.Fatalf("expected loopback-only when PUBLIC_IP unset")
	}
}
