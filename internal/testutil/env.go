// Package testutil provides utilities for testing binshim in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// envKeys lists every variable that influences binshim configuration.
var envKeys = []string{
	"BINSHIM_HOME",
	"BINSHIM_LOG_LEVEL",
	"BINSHIM_PROXY",
	"BINSHIM_VERIFY",
	"BINSHIM_GPG_KEYRING",
	"BINSHIM_SIGSTORE_IDENTITY",
	"BINSHIM_SIGSTORE_ISSUER",
	"BINSHIM_SIGSTORE_TRUSTED_ROOT",
	"BINSHIM_TIMEOUT",
	"BINSHIM_RETRIES",
}

// SetupTestEnv points BINSHIM_HOME at a fresh temp directory and clears
// the other BINSHIM_* variables, so tests never touch the user's cache or
// pick up settings from the developer's shell. It returns the home dir.
//
// The directory is removed by t.TempDir cleanup; the environment is
// restored by t.Setenv.
func SetupTestEnv(t *testing.T) string {
	t.Helper()

	home := filepath.Join(t.TempDir(), "binshim")
	if err := os.MkdirAll(home, 0o750); err != nil {
		t.Fatalf("failed to create test home %s: %v", home, err)
	}

	for _, key := range envKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("BINSHIM_HOME", home)

	// Proxy variables would reroute httptest traffic
	for _, key := range []string{"HTTP_PROXY", "HTTPS_PROXY", "http_proxy", "https_proxy"} {
		t.Setenv(key, "")
	}

	return home
}

// WriteConfig writes a config.lua into home and returns its path.
func WriteConfig(t *testing.T, home, luaCode string) string {
	t.Helper()

	path := filepath.Join(home, "config.lua")
	if err := os.WriteFile(path, []byte(luaCode), 0o600); err != nil {
		t.Fatalf("failed to write config %s: %v", path, err)
	}
	return path
}
