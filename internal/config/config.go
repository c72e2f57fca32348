package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/ZebulonRouseFrantzich/binshim/internal/binary"
	"github.com/ZebulonRouseFrantzich/binshim/internal/logging"
	"github.com/ZebulonRouseFrantzich/binshim/internal/platform"
)

// Settings is the resolved runtime configuration.
type Settings struct {
	Home                string        `json:"home" yaml:"home"`
	LogLevel            string        `json:"log_level" yaml:"log_level"`
	Proxy               string        `json:"proxy,omitempty" yaml:"proxy,omitempty"`
	Verify              string        `json:"verify" yaml:"verify"`
	GPGKeyring          string        `json:"gpg_keyring,omitempty" yaml:"gpg_keyring,omitempty"`
	SigstoreIdentity    string        `json:"sigstore_identity,omitempty" yaml:"sigstore_identity,omitempty"`
	SigstoreIssuer      string        `json:"sigstore_issuer,omitempty" yaml:"sigstore_issuer,omitempty"`
	SigstoreTrustedRoot string        `json:"sigstore_trusted_root,omitempty" yaml:"sigstore_trusted_root,omitempty"`
	Timeout             time.Duration `json:"timeout" yaml:"timeout"`
	Retries             int           `json:"retries" yaml:"retries"`

	// File is the config file that was loaded, empty when none exists
	File string `json:"file,omitempty" yaml:"file,omitempty"`
}

// DefaultHome returns <user cache dir>/binshim.
func DefaultHome() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "binshim")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyHome, DefaultHome())
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyVerify, string(binary.VerifyAuto))
	v.SetDefault(KeyTimeout, binary.DefaultTimeout)
	v.SetDefault(KeyRetries, binary.DefaultRetries)
}

// Load resolves settings from, highest precedence first, BINSHIM_*
// environment variables, <home>/config.lua, and defaults. The config file
// is located with the home directory from the environment or defaults.
func Load(ctx context.Context, detector platform.Detector) (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	file := filepath.Join(v.GetString(KeyHome), FileName)
	loaded := ""

	if _, err := os.Stat(file); err == nil {
		values, err := NewParser(detector).ParseFile(ctx, file)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(values); err != nil {
			return nil, fmt.Errorf("merge config file: %w", err)
		}
		loaded = file
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat config file: %w", err)
	}

	timeout, err := cast.ToDurationE(v.Get(KeyTimeout))
	if err != nil {
		return nil, fmt.Errorf("%s: %q is not a duration", KeyTimeout, v.Get(KeyTimeout))
	}
	retries, err := cast.ToIntE(v.Get(KeyRetries))
	if err != nil {
		return nil, fmt.Errorf("%s: %q is not an integer", KeyRetries, v.Get(KeyRetries))
	}

	s := &Settings{
		Home:                v.GetString(KeyHome),
		LogLevel:            v.GetString(KeyLogLevel),
		Proxy:               v.GetString(KeyProxy),
		Verify:              v.GetString(KeyVerify),
		GPGKeyring:          v.GetString(KeyGPGKeyring),
		SigstoreIdentity:    v.GetString(KeySigstoreIdentity),
		SigstoreIssuer:      v.GetString(KeySigstoreIssuer),
		SigstoreTrustedRoot: v.GetString(KeySigstoreTrustedRoot),
		Timeout:             timeout,
		Retries:             retries,
		File:                loaded,
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Validate checks the settings and makes Home absolute.
func (s *Settings) Validate() error {
	if s.Home == "" {
		return fmt.Errorf("%s must not be empty", KeyHome)
	}
	home, err := filepath.Abs(s.Home)
	if err != nil {
		return fmt.Errorf("%s: %w", KeyHome, err)
	}
	s.Home = home

	if _, err := logging.ParseLevel(s.LogLevel); err != nil {
		return fmt.Errorf("%s: %w", KeyLogLevel, err)
	}

	if _, ok := binary.ParseVerifyPolicy(s.Verify); !ok {
		return fmt.Errorf("%s: unknown policy %q (want auto, required or off)", KeyVerify, s.Verify)
	}

	if s.Proxy != "" {
		if _, err := s.ProxyURL(); err != nil {
			return err
		}
	}

	if s.Timeout < time.Second {
		return fmt.Errorf("%s: %s is shorter than 1s", KeyTimeout, s.Timeout)
	}

	if s.Retries < 0 {
		return fmt.Errorf("%s: must not be negative", KeyRetries)
	}
	if s.Retries > binary.MaxRetries {
		return fmt.Errorf("%s: %d exceeds the maximum of %d", KeyRetries, s.Retries, binary.MaxRetries)
	}

	if (s.SigstoreIdentity == "") != (s.SigstoreIssuer == "") {
		return fmt.Errorf("%s and %s must be set together", KeySigstoreIdentity, KeySigstoreIssuer)
	}

	return nil
}

// ProxyURL parses the proxy setting. It returns nil when no proxy is set.
func (s *Settings) ProxyURL() (*url.URL, error) {
	if s.Proxy == "" {
		return nil, nil
	}

	u, err := url.Parse(s.Proxy)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyProxy, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s: %q is not an absolute URL", KeyProxy, s.Proxy)
	}
	return u, nil
}

// VerifyPolicy returns the verification policy.
func (s *Settings) VerifyPolicy() binary.VerifyPolicy {
	policy, _ := binary.ParseVerifyPolicy(s.Verify)
	return policy
}
