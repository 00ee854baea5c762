package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultAdminUser = "consigliere"
	DefaultAdminPass = "BariLoseto2025!"
)

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

type Config struct {
	ListenAddr      string
	DataDir         string
	DBPath          string
	ClientOrigins   []string
	AdminUser       string
	AdminPass       string
	AdminPassHash   string
	PhotoBackend    string
	PhotoPath       string
	S3              S3Config
	MaxUploadBytes  int64
	PublicBaseURL   string
	ClientDist      string
	MessageTitle    string
	MessageTimezone string
	MetricsEnabled  bool
	LogLevel        string
	LogFormat       string
	LogFile         string
}

// Load reads .env files from the working directory and then the process
// environment.
func Load() (*Config, error) {
	if err := loadEnvFiles("."); err != nil {
		return nil, err
	}

	dataDir := getEnv("DATA_DIR", "./data")
	listenAddr := getEnv("LISTEN_ADDR", "")
	if listenAddr == "" {
		listenAddr = ":" + getEnv("PORT", "3001")
	}

	maxUpload, err := getInt64("MAX_UPLOAD_BYTES", 6*1024*1024)
	if err != nil {
		return nil, err
	}
	metricsEnabled, err := getBool("METRICS_ENABLED", true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddr:    listenAddr,
		DataDir:       dataDir,
		DBPath:        getEnv("DB_PATH", filepath.Join(dataDir, "reports.sqlite")),
		ClientOrigins: splitList(getEnv("CLIENT_ORIGIN", "http://localhost:5173")),
		AdminUser:     getEnv("ADMIN_USER", DefaultAdminUser),
		AdminPass:     getEnv("ADMIN_PASS", DefaultAdminPass),
		AdminPassHash: getEnv("ADMIN_PASS_HASH", ""),
		PhotoBackend:  getEnv("PHOTO_BACKEND", "local"),
		PhotoPath:     getEnv("PHOTO_LOCAL_PATH", filepath.Join(dataDir, "uploads")),
		S3: S3Config{
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Prefix:          getEnv("S3_PREFIX", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		},
		MaxUploadBytes:  maxUpload,
		PublicBaseURL:   strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		ClientDist:      getEnv("CLIENT_DIST", ""),
		MessageTitle:    getEnv("MESSAGE_TITLE", "Segnalazione Municipio Bari Loseto"),
		MessageTimezone: getEnv("MESSAGE_TIMEZONE", "Europe/Rome"),
		MetricsEnabled:  metricsEnabled,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		LogFile:         getEnv("LOG_FILE", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultCredentials reports whether the operator credential is the
// built-in plaintext default.
func (c *Config) DefaultCredentials() bool {
	return c.AdminPassHash == "" && c.AdminUser == DefaultAdminUser && c.AdminPass == DefaultAdminPass
}

func (c *Config) validate() error {
	switch c.PhotoBackend {
	case "local":
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("S3_BUCKET is required when PHOTO_BACKEND=s3")
		}
	default:
		return fmt.Errorf("unknown PHOTO_BACKEND %q (want local or s3)", c.PhotoBackend)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.AdminUser == "" {
		return errors.New("ADMIN_USER must not be empty")
	}
	if c.AdminPassHash == "" && c.AdminPass == "" {
		return errors.New("one of ADMIN_PASS or ADMIN_PASS_HASH is required")
	}
	return nil
}

// loadEnvFiles loads .env, then .env.<APP_ENV>, then .env.local from dir.
// Each later file overrides the earlier ones. All files are optional.
func loadEnvFiles(dir string) error {
	base := filepath.Join(dir, ".env")
	if _, err := os.Stat(base); err == nil {
		if err := godotenv.Load(base); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}

	if env := os.Getenv("APP_ENV"); env != "" {
		envFile := filepath.Join(dir, ".env."+env)
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Overload(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	local := filepath.Join(dir, ".env.local")
	if _, err := os.Stat(local); err == nil {
		if err := godotenv.Overload(local); err != nil {
			return fmt.Errorf("failed to load .env.local: %w", err)
		}
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getInt64(key string, defaultVal int64) (int64, error) {
	val, exists := os.LookupEnv(key)
	if !exists || val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return n, nil
}

func getBool(key string, defaultVal bool) (bool, error) {
	val, exists := os.LookupEnv(key)
	if !exists || val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
