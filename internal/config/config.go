// Package config implements the three-tier configuration hierarchy
// (C10): CLI flags override environment variables, which override an
// optional on-disk JSON-with-comments file, which in turn overrides the
// package defaults. The env-var tier and its getEnv*/getEnvInt helpers
// are adapted directly from config/config.go; the file tier and CLI
// tier are new, grounded respectively on calvinalkan-agent-task's
// config.go (hujson.Standardize over a JSONC file) and its
// internal/cli/create.go (spf13/pflag flag sets with short/long forms).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	flag "github.com/spf13/pflag"
	"github.com/tailscale/hujson"
	"golang.org/x/crypto/blake2b"

	"github.com/nodalkv/nodal/internal/kverrors"
)

// Config holds every runtime setting the server needs. Zero values are
// never used directly — Load always starts from Defaults().
type Config struct {
	Port         int    `json:"port"`
	DataDir      string `json:"data_dir"`
	SQLitePath   string `json:"sqlite_path"`
	Token        string `json:"token"`
	WriteQueueSz int    `json:"write_queue_size"`
	LogLevel     string `json:"log_level"`
	StatusPath   string `json:"status_path"`

	// TokenDigest is the blake2b-256 digest of Token, computed by Load
	// once the token is known from whichever tier set it. The clear
	// Token field is not cleared afterward, but every comparison on the
	// request path uses TokenDigest, never Token.
	TokenDigest [32]byte `json:"-"`
}

// Defaults returns the package's baseline configuration, the lowest of
// the four tiers.
func Defaults() Config {
	return Config{
		Port:         8085,
		DataDir:      "./data",
		SQLitePath:   "./data/store.sql",
		WriteQueueSz: 1000,
		LogLevel:     "info",
		StatusPath:   "./data/status.json",
	}
}

// Load resolves the full precedence chain: defaults < config file <
// environment variables < CLI flags. configPath, when non-empty, is a
// hujson (JSON-with-comments) file; args is the process's CLI argument
// list (normally os.Args[1:]).
func Load(configPath string, args []string) (Config, error) {
	cfg := Defaults()

	if configPath != "" {
		fileCfg, err := loadFile(configPath)
		if err != nil {
			return Config{}, err
		}
		mergeFile(&cfg, fileCfg)
	}

	applyEnv(&cfg)

	if err := applyFlags(&cfg, args); err != nil {
		return Config{}, err
	}

	if cfg.Token == "" {
		return Config{}, fmt.Errorf("%w: no bearer token configured (set NODAL_TOKEN, --token, or a config file token)", kverrors.ErrValidation)
	}
	cfg.TokenDigest = blake2b.Sum256([]byte(cfg.Token))

	return cfg, nil
}

// fileConfig mirrors Config's JSON-visible fields; a pointer-valued
// twin so loadFile can tell "absent from the file" apart from "zero
// value" when merging.
type fileConfig struct {
	Port         *int    `json:"port"`
	DataDir      *string `json:"data_dir"`
	SQLitePath   *string `json:"sqlite_path"`
	Token        *string `json:"token"`
	WriteQueueSz *int    `json:"write_queue_size"`
	LogLevel     *string `json:"log_level"`
	StatusPath   *string `json:"status_path"`
}

func loadFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("%w: read config file %s: %v", kverrors.ErrIO, path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileConfig{}, fmt.Errorf("%w: invalid JSONC in %s: %v", kverrors.ErrValidation, path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(standardized, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("%w: parse config file %s: %v", kverrors.ErrValidation, path, err)
	}
	return fc, nil
}

func mergeFile(cfg *Config, fc fileConfig) {
	if fc.Port != nil {
		cfg.Port = *fc.Port
	}
	if fc.DataDir != nil {
		cfg.DataDir = *fc.DataDir
	}
	if fc.SQLitePath != nil {
		cfg.SQLitePath = *fc.SQLitePath
	}
	if fc.Token != nil {
		cfg.Token = *fc.Token
	}
	if fc.WriteQueueSz != nil {
		cfg.WriteQueueSz = *fc.WriteQueueSz
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.StatusPath != nil {
		cfg.StatusPath = *fc.StatusPath
	}
}

// applyEnv overlays environment variables, adapted from
// config/config.go's getEnv/getEnvInt helpers.
func applyEnv(cfg *Config) {
	cfg.Port = getEnvInt("NODAL_PORT", cfg.Port)
	cfg.DataDir = getEnv("NODAL_DATA_DIR", cfg.DataDir)
	cfg.SQLitePath = getEnv("NODAL_SQLITE_PATH", cfg.SQLitePath)
	cfg.Token = getEnv("NODAL_TOKEN", cfg.Token)
	cfg.WriteQueueSz = getEnvInt("NODAL_WRITE_QUEUE_SIZE", cfg.WriteQueueSz)
	cfg.LogLevel = getEnv("NODAL_LOG_LEVEL", cfg.LogLevel)
	cfg.StatusPath = getEnv("NODAL_STATUS_PATH", cfg.StatusPath)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

// applyFlags overlays CLI flags, the highest-priority tier, using
// spf13/pflag the way calvinalkan-agent-task's internal/cli/create.go
// builds a dedicated FlagSet per invocation rather than relying on the
// global flag.CommandLine set.
func applyFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("nodal", flag.ContinueOnError)
	fs.String("config", "", "path to a hujson (JSON-with-comments) config file")

	port := fs.IntP("port", "p", cfg.Port, "HTTP listen port")
	dataDir := fs.String("data-dir", cfg.DataDir, "directory holding the data and descriptor logs")
	sqlitePath := fs.String("sqlite-path", cfg.SQLitePath, "path to the sqlite boundary database")
	token := fs.String("token", cfg.Token, "bearer token required on every request")
	queueSize := fs.Int("write-queue-size", cfg.WriteQueueSz, "write queue channel capacity")
	logLevel := fs.StringP("log-level", "l", cfg.LogLevel, "trace|debug|info|warn|error")
	statusPath := fs.String("status-path", cfg.StatusPath, "path to the atomically-written status snapshot")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: parse flags: %v", kverrors.ErrValidation, err)
	}

	cfg.Port = *port
	cfg.DataDir = *dataDir
	cfg.SQLitePath = *sqlitePath
	cfg.Token = *token
	cfg.WriteQueueSz = *queueSize
	cfg.LogLevel = *logLevel
	cfg.StatusPath = *statusPath
	return nil
}
