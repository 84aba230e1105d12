package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultAPIKey is a placeholder that must be overridden in production.
const DefaultAPIKey = "your-secret-api-key-change-this"

// Keys double as flag names.
const (
	KeyAPIKey          = "api-key"
	KeyAllowedOrigins  = "allowed-origins"
	KeyHost            = "host"
	KeyPort            = "port"
	KeyModel           = "model"
	KeyModelDir        = "model-dir"
	KeyLanguage        = "language"
	KeyThreads         = "threads"
	KeyWhisperPath     = "whisper-path"
	KeyAutoDownload    = "auto-download"
	KeyMaxConcurrent   = "max-concurrent"
	KeyMaxBodyBytes    = "max-body-bytes"
	KeyScratchDir      = "scratch-dir"
	KeySilenceGate     = "silence-gate"
	KeySilenceDBFS     = "silence-threshold-dbfs"
	KeyShutdownTimeout = "shutdown-timeout"
)

var envNames = map[string]string{
	KeyAPIKey:          "API_KEY",
	KeyAllowedOrigins:  "ALLOWED_ORIGINS",
	KeyHost:            "HOST",
	KeyPort:            "PORT",
	KeyModel:           "VOXAPI_MODEL",
	KeyModelDir:        "VOXAPI_MODEL_DIR",
	KeyLanguage:        "VOXAPI_LANGUAGE",
	KeyThreads:         "VOXAPI_THREADS",
	KeyWhisperPath:     "VOXAPI_WHISPER_PATH",
	KeyAutoDownload:    "VOXAPI_AUTO_DOWNLOAD",
	KeyMaxConcurrent:   "VOXAPI_MAX_CONCURRENT",
	KeyMaxBodyBytes:    "VOXAPI_MAX_BODY_BYTES",
	KeyScratchDir:      "VOXAPI_SCRATCH_DIR",
	KeySilenceGate:     "VOXAPI_SILENCE_GATE",
	KeySilenceDBFS:     "VOXAPI_SILENCE_THRESHOLD_DBFS",
	KeyShutdownTimeout: "VOXAPI_SHUTDOWN_TIMEOUT",
}

type Config struct {
	APIKey          string
	AllowedOrigins  []string
	Host            string
	Port            int
	Model           string
	ModelDir        string
	Language        string
	Threads         int
	WhisperPath     string
	AutoDownload    bool
	MaxConcurrent   int
	MaxBodyBytes    int64
	ScratchDir      string
	SilenceGate     bool
	SilenceDBFS     float64
	ShutdownTimeout time.Duration
}

func Defaults() Config {
	return Config{
		APIKey:          DefaultAPIKey,
		AllowedOrigins:  []string{"*"},
		Host:            "0.0.0.0",
		Port:            8000,
		Model:           "base",
		Language:        "auto",
		AutoDownload:    true,
		MaxConcurrent:   2,
		MaxBodyBytes:    64 << 20,
		SilenceGate:     true,
		SilenceDBFS:     -65,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Addr is the listen address in host:port form.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) UsesDefaultAPIKey() bool {
	return c.APIKey == DefaultAPIKey
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, errors.New("API key must not be empty"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range 1-65535", c.Port))
	}
	if c.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("max concurrent transcriptions must be positive, got %d", c.MaxConcurrent))
	}
	if c.MaxBodyBytes < 1 {
		errs = append(errs, fmt.Errorf("max body bytes must be positive, got %d", c.MaxBodyBytes))
	}
	if c.Threads < 0 {
		errs = append(errs, fmt.Errorf("threads must not be negative, got %d", c.Threads))
	}
	if len(c.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("at least one allowed origin is required"))
	}
	return errors.Join(errs...)
}

// BindServerFlags registers every setting except the API key as a flag.
func BindServerFlags(flags *pflag.FlagSet) {
	d := Defaults()
	flags.String(KeyHost, d.Host, "Interface to listen on")
	flags.Int(KeyPort, d.Port, "Port to listen on")
	flags.String(KeyAllowedOrigins, strings.Join(d.AllowedOrigins, ","), "Comma-separated CORS origins")
	flags.Int(KeyMaxConcurrent, d.MaxConcurrent, "Maximum concurrent whisper runs")
	flags.Int64(KeyMaxBodyBytes, d.MaxBodyBytes, "Maximum request body size in bytes")
	flags.String(KeyScratchDir, d.ScratchDir, "Directory for per-request audio files (default: system temp)")
	flags.Bool(KeySilenceGate, d.SilenceGate, "Return an empty transcript for near-silent audio without running whisper")
	flags.Float64(KeySilenceDBFS, d.SilenceDBFS, "Silence gate threshold in dBFS")
	flags.Duration(KeyShutdownTimeout, d.ShutdownTimeout, "Grace period for in-flight requests on shutdown")
	BindModelFlags(flags)
}

// BindModelFlags registers only the model settings.
func BindModelFlags(flags *pflag.FlagSet) {
	d := Defaults()
	flags.String(KeyModel, d.Model, "Model name or model file path")
	flags.String(KeyModelDir, d.ModelDir, "Directory where models are stored")
	flags.String(KeyLanguage, d.Language, "Language code (auto|en|de|...) for transcription")
	flags.Int(KeyThreads, d.Threads, "Threads per whisper run (0 uses the engine default)")
	flags.String(KeyWhisperPath, d.WhisperPath, "Path to the whisper-cli binary")
	flags.Bool(KeyAutoDownload, d.AutoDownload, "Automatically download missing models")
}

// Load merges defaults, the optional dotenv file, the environment and
// explicitly set flags, in increasing precedence. A missing dotenv file is
// not an error.
func Load(flags *pflag.FlagSet, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	d := Defaults()
	v.SetDefault(KeyAPIKey, d.APIKey)
	v.SetDefault(KeyAllowedOrigins, strings.Join(d.AllowedOrigins, ","))
	v.SetDefault(KeyHost, d.Host)
	v.SetDefault(KeyPort, d.Port)
	v.SetDefault(KeyModel, d.Model)
	v.SetDefault(KeyModelDir, d.ModelDir)
	v.SetDefault(KeyLanguage, d.Language)
	v.SetDefault(KeyThreads, d.Threads)
	v.SetDefault(KeyWhisperPath, d.WhisperPath)
	v.SetDefault(KeyAutoDownload, d.AutoDownload)
	v.SetDefault(KeyMaxConcurrent, d.MaxConcurrent)
	v.SetDefault(KeyMaxBodyBytes, d.MaxBodyBytes)
	v.SetDefault(KeyScratchDir, d.ScratchDir)
	v.SetDefault(KeySilenceGate, d.SilenceGate)
	v.SetDefault(KeySilenceDBFS, d.SilenceDBFS)
	v.SetDefault(KeyShutdownTimeout, d.ShutdownTimeout)

	for key, env := range envNames {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	cfg := Config{
		APIKey:          v.GetString(KeyAPIKey),
		AllowedOrigins:  SplitOrigins(v.GetString(KeyAllowedOrigins)),
		Host:            v.GetString(KeyHost),
		Port:            v.GetInt(KeyPort),
		Model:           strings.TrimSpace(v.GetString(KeyModel)),
		ModelDir:        strings.TrimSpace(v.GetString(KeyModelDir)),
		Language:        SanitizeLanguage(v.GetString(KeyLanguage)),
		Threads:         v.GetInt(KeyThreads),
		WhisperPath:     strings.TrimSpace(v.GetString(KeyWhisperPath)),
		AutoDownload:    v.GetBool(KeyAutoDownload),
		MaxConcurrent:   v.GetInt(KeyMaxConcurrent),
		MaxBodyBytes:    v.GetInt64(KeyMaxBodyBytes),
		ScratchDir:      strings.TrimSpace(v.GetString(KeyScratchDir)),
		SilenceGate:     v.GetBool(KeySilenceGate),
		SilenceDBFS:     v.GetFloat64(KeySilenceDBFS),
		ShutdownTimeout: v.GetDuration(KeyShutdownTimeout),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SplitOrigins parses a comma-separated allowlist, dropping blanks.
func SplitOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func SanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return "auto"
	}
	return trimmed
}
