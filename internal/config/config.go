// Package config loads the server's static configuration: a JSON file on
// disk with environment-variable overrides layered on top, the same
// layering role the teacher's main.go gives its flag defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config is the full set of settings a dotphira-mp process needs before it
// can start accepting connections.
type Config struct {
	GamePort         int    `json:"gamePort"`
	HttpPort         int    `json:"httpPort"`
	ServerName       string `json:"serverName"`
	WelcomeMessage   string `json:"welcomeMessage"`
	HttpService      bool   `json:"httpService"`
	AdminToken       string `json:"adminToken,omitempty"`
	ViewToken        string `json:"viewToken,omitempty"`
	AdminDataPath    string `json:"adminDataPath"`
	IdentityBaseURL  string `json:"identityBaseUrl"`
	PrivilegedUserID int32  `json:"privilegedUserId"`
}

// Default returns the documented defaults, used both as the base a loaded
// file is merged onto and as the whole config when no file exists.
func Default() Config {
	return Config{
		GamePort:        12346,
		HttpPort:        12347,
		ServerName:      "dotphira-mp",
		HttpService:     true,
		AdminDataPath:   "admin_data.json",
		IdentityBaseURL: "",
	}
}

// Load reads path if it exists (a missing file is not an error — the
// defaults stand in for it) and applies environment overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// no file on disk: defaults stand as-is.
	case err != nil:
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv layers the four environment variables the spec names over
// whatever the JSON file (or the defaults) already set. PHIRA_MP_HOME is
// accepted as an alias for ADMIN_DATA_PATH, taking precedence only when
// ADMIN_DATA_PATH itself is unset.
func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("HTTP_SERVICE"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.HttpService = b
		}
	}
	if v, ok := os.LookupEnv("HTTP_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HttpPort = n
		}
	}
	if v, ok := os.LookupEnv("ADMIN_TOKEN"); ok {
		cfg.AdminToken = v
	}
	if v, ok := os.LookupEnv("ADMIN_DATA_PATH"); ok {
		cfg.AdminDataPath = v
	} else if v, ok := os.LookupEnv("PHIRA_MP_HOME"); ok {
		cfg.AdminDataPath = v
	}
}
