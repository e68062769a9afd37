package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// Profile is the saved default connection for the CLI. The file holds the
// shared secret, so it is written with owner-only permissions.
type Profile struct {
	Username           string   `json:"username"`
	Secret             string   `json:"secret"`
	Environment        string   `json:"environment,omitempty"`
	Endpoint           string   `json:"endpoint,omitempty"`
	PollInterval       Duration `json:"poll_interval,omitempty"`
	PollTimeout        Duration `json:"poll_timeout,omitempty"`
	PollMaxAttempts    uint     `json:"poll_max_attempts,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty"`
	Log                bool     `json:"log,omitempty"`
	Debug              bool     `json:"debug,omitempty"`
}

// Duration stores a time.Duration as text ("250ms") in JSON.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func ProfilePath() (string, error) {
	root, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "omniture-reporter", "profile.json"), nil
}

func LoadProfile() (Profile, error) {
	path, err := ProfilePath()
	if err != nil {
		return Profile{}, err
	}
	lock := flock.New(path + ".lock")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Profile{}, err
	}
	if err := lock.RLock(); err != nil {
		return Profile{}, fmt.Errorf("lock profile: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, err
	}
	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return Profile{}, fmt.Errorf("decode profile %s: %w", path, err)
	}
	return profile, nil
}

// SaveProfile replaces the saved profile. Concurrent CLI processes are
// serialised through an exclusive lock file next to the profile.
func SaveProfile(profile Profile) error {
	path, err := ProfilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock profile: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".profile-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// MergeOptionsWithProfile fills options the CLI left unset from the saved
// profile. Values given on the command line or in the environment win.
func MergeOptionsWithProfile(cli Options, saved Profile) Options {
	if strings.TrimSpace(cli.Username) == "" {
		cli.Username = saved.Username
	}
	if cli.Secret == "" {
		cli.Secret = saved.Secret
	}
	if strings.TrimSpace(cli.Environment) == "" && strings.TrimSpace(cli.Endpoint) == "" {
		cli.Environment = saved.Environment
		cli.Endpoint = saved.Endpoint
	}
	if cli.PollInterval == 0 {
		cli.PollInterval = time.Duration(saved.PollInterval)
	}
	if cli.PollTimeout == 0 {
		cli.PollTimeout = time.Duration(saved.PollTimeout)
	}
	if cli.PollMaxAttempts == 0 {
		cli.PollMaxAttempts = saved.PollMaxAttempts
	}
	if !cli.InsecureSkipVerify {
		cli.InsecureSkipVerify = saved.InsecureSkipVerify
	}
	if !cli.Log {
		cli.Log = saved.Log
	}
	if !cli.Debug {
		cli.Debug = saved.Debug
	}
	return cli
}

func ProfileFromOptions(opts Options) Profile {
	return Profile{
		Username:           strings.TrimSpace(opts.Username),
		Secret:             opts.Secret,
		Environment:        strings.TrimSpace(opts.Environment),
		Endpoint:           strings.TrimSpace(opts.Endpoint),
		PollInterval:       Duration(opts.PollInterval),
		PollTimeout:        Duration(opts.PollTimeout),
		PollMaxAttempts:    opts.PollMaxAttempts,
		InsecureSkipVerify: opts.InsecureSkipVerify,
		Log:                opts.Log,
		Debug:              opts.Debug,
	}
}
