package server

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// GameConf holds game-level configuration. It is read from YAML and then
// overridden by MUSHKIT_* environment variables.
type GameConf struct {
	// --- Identity ---
	MudName string `yaml:"mud_name" env:"MUSHKIT_NAME"`

	// --- Storage ---
	DataDir        string `yaml:"data_dir" env:"MUSHKIT_DATA_DIR"`
	BoltFile       string `yaml:"bolt_file" env:"MUSHKIT_BOLT_FILE"`              // object database, relative to DataDir
	AccountsFile   string `yaml:"accounts_file" env:"MUSHKIT_ACCOUNTS_FILE"`      // sqlite accounts, relative to DataDir
	SQLBusyTimeout int    `yaml:"sql_busy_timeout" env:"MUSHKIT_SQL_BUSY_TIMEOUT"` // milliseconds
	BackupDir      string `yaml:"backup_dir" env:"MUSHKIT_BACKUP_DIR"`
	TextDir        string `yaml:"text_dir" env:"MUSHKIT_TEXT_DIR"` // connect.txt, motd.txt, quit.txt

	// --- Key rooms ---
	StartingRoom int `yaml:"starting_room" env:"MUSHKIT_STARTING_ROOM"`
	DefaultHome  int `yaml:"default_home" env:"MUSHKIT_DEFAULT_HOME"` // seeds the default_home config value

	// --- Telnet ---
	Port         int    `yaml:"port" env:"MUSHKIT_PORT"`
	Cleartext    *bool  `yaml:"cleartext" env:"MUSHKIT_CLEARTEXT"` // nil = default true
	InputCharset string `yaml:"input_charset" env:"MUSHKIT_INPUT_CHARSET"`
	MaxRetries   int    `yaml:"max_retries" env:"MUSHKIT_MAX_RETRIES"`

	// --- SSH ---
	SSHEnabled bool   `yaml:"ssh_enabled" env:"MUSHKIT_SSH_ENABLED"`
	SSHPort    int    `yaml:"ssh_port" env:"MUSHKIT_SSH_PORT"`
	SSHHostKey string `yaml:"ssh_host_key" env:"MUSHKIT_SSH_HOST_KEY"` // PEM file, generated when missing

	// --- Web ---
	WebEnabled     bool     `yaml:"web_enabled" env:"MUSHKIT_WEB_ENABLED"`
	WebPort        int      `yaml:"web_port" env:"MUSHKIT_WEB_PORT"`
	WebHost        string   `yaml:"web_host" env:"MUSHKIT_WEB_HOST"`
	WebCORSOrigins []string `yaml:"web_cors_origins" env:"MUSHKIT_WEB_CORS_ORIGINS" envSeparator:","`
	WebRateLimit   int      `yaml:"web_rate_limit" env:"MUSHKIT_WEB_RATE_LIMIT"` // requests per minute per IP
	JWTSecret      string   `yaml:"jwt_secret" env:"MUSHKIT_JWT_SECRET"`
	JWTExpiry      int      `yaml:"jwt_expiry" env:"MUSHKIT_JWT_EXPIRY"` // seconds

	// --- Game loop ---
	IdleTimeout     int `yaml:"idle_timeout" env:"MUSHKIT_IDLE_TIMEOUT"` // seconds, 0 = never
	AutosaveMinutes int `yaml:"autosave_minutes" env:"MUSHKIT_AUTOSAVE_MINUTES"`
	EvalTimeout     int `yaml:"eval_timeout" env:"MUSHKIT_EVAL_TIMEOUT"` // @py limit in seconds
}

// DefaultGameConf returns a GameConf with the stock defaults.
func DefaultGameConf() *GameConf {
	return &GameConf{
		MudName:         "mushkit",
		DataDir:         "data",
		BoltFile:        "game.bolt",
		AccountsFile:    "accounts.db",
		SQLBusyTimeout:  5000,
		BackupDir:       "backups",
		StartingRoom:    1,
		Port:            4000,
		InputCharset:    "iso-8859-1",
		MaxRetries:      3,
		SSHPort:         4022,
		SSHHostKey:      "ssh_host_key.pem",
		WebPort:         8080,
		WebRateLimit:    60,
		JWTExpiry:       86400,
		IdleTimeout:     3600,
		AutosaveMinutes: 10,
		EvalTimeout:     5,
	}
}

// LoadGameConf reads a YAML config file over the defaults and then applies
// environment overrides. An empty path yields defaults plus environment.
func LoadGameConf(path string) (*GameConf, error) {
	gc := DefaultGameConf()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, gc); err != nil {
			return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
		}
	}
	if err := env.Parse(gc); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if gc.TextDir != "" && path != "" && !filepath.IsAbs(gc.TextDir) {
		gc.TextDir = filepath.Join(filepath.Dir(path), gc.TextDir)
	}
	return gc, nil
}

// IsCleartext reports whether the telnet listener is enabled.
func (gc *GameConf) IsCleartext() bool {
	return gc.Cleartext == nil || *gc.Cleartext
}

// DataPath resolves a file name relative to DataDir.
func (gc *GameConf) DataPath(name string) string {
	if filepath.IsAbs(name) || gc.DataDir == "" {
		return name
	}
	return filepath.Join(gc.DataDir, name)
}
