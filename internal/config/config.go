// Package config defines the configuration contract and handles loading and validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken  = "TELEGRAM_TOKEN"
	KeyBootstrapAdmin = "BOOTSTRAP_ADMIN"
	KeyAppEnv         = "APP_ENV"
	KeyLogLevel       = "LOG_LEVEL"
	KeyHTTPPort       = "HTTP_PORT"
	KeyStoreBackend   = "STORE_BACKEND"
	KeyDataDir        = "DATA_DIR"
	KeyStoreStrict    = "STORE_STRICT"
	KeyMongoURI       = "MONGO_URI"
	KeyMongoDB        = "MONGO_DB"
	KeyStateBackend   = "STATE_BACKEND"
	KeyRedisAddr      = "REDIS_ADDR"
	KeyRedisPassword  = "REDIS_PASSWORD"
	KeyRedisDB        = "REDIS_DB"
	KeyStateTTL       = "STATE_TTL"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Record store backends.
	StoreBackendFile  = "file"
	StoreBackendMongo = "mongo"

	// Conversation state backends.
	StateBackendMemory = "memory"
	StateBackendRedis  = "redis"

	// Defaults for optional settings.
	DefaultAppEnv       = EnvProduction
	DefaultLogLevel     = "info"
	DefaultHTTPPort     = 8080
	DefaultStoreBackend = StoreBackendFile
	DefaultDataDir      = "data"
	DefaultStateBackend = StateBackendMemory
	DefaultStateTTL     = 24 * time.Hour
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyBootstrapAdmin,
		Example:     "123456789",
		Required:    true,
		Description: "Telegram user_id seeded as administrator when the admin set is empty.",
		Notes:       "Only applied on startup; existing admin sets are never modified.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP health/metrics port.",
	},
	{
		Key:         KeyStoreBackend,
		Example:     StoreBackendFile + " / " + StoreBackendMongo,
		Default:     DefaultStoreBackend,
		Description: "Where users, promotions and admins documents are persisted.",
	},
	{
		Key:         KeyDataDir,
		Example:     DefaultDataDir,
		Default:     DefaultDataDir,
		Description: "Directory holding users.json, promotions.json and admins.json.",
		Notes:       "Used only when " + KeyStoreBackend + "=" + StoreBackendFile + ".",
	},
	{
		Key:         KeyStoreStrict,
		Example:     "false",
		Default:     "false",
		Description: "Surface unreadable documents as errors instead of treating them as empty.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Description: "MongoDB connection string.",
		Notes:       "Required when " + KeyStoreBackend + "=" + StoreBackendMongo + ".",
	},
	{
		Key:         KeyMongoDB,
		Example:     "loyalty_bot",
		Description: "MongoDB database name.",
		Notes:       "Required when " + KeyStoreBackend + "=" + StoreBackendMongo + ".",
	},
	{
		Key:         KeyStateBackend,
		Example:     StateBackendMemory + " / " + StateBackendRedis,
		Default:     DefaultStateBackend,
		Description: "Where in-progress conversation state is kept.",
	},
	{
		Key:         KeyRedisAddr,
		Example:     "localhost:6379",
		Description: "Redis address for conversation state.",
		Notes:       "Required when " + KeyStateBackend + "=" + StateBackendRedis + ".",
	},
	{
		Key:         KeyRedisPassword,
		Description: "Redis password.",
	},
	{
		Key:         KeyRedisDB,
		Example:     "0",
		Default:     "0",
		Description: "Redis logical database.",
	},
	{
		Key:         KeyStateTTL,
		Example:     DefaultStateTTL.String(),
		Default:     DefaultStateTTL.String(),
		Description: "Expiry of an idle conversation state in Redis.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken  string
	BootstrapAdmin string
	AppEnv         string
	LogLevel       string
	HTTPPort       int
	StoreBackend   string
	DataDir        string
	StoreStrict    bool
	MongoURI       string
	MongoDB        string
	StateBackend   string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	StateTTL       time.Duration
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:        firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken: strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		LogLevel:      firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:      DefaultHTTPPort,
		StoreBackend:  firstNonEmpty(normalizeEnv(os.Getenv(KeyStoreBackend)), DefaultStoreBackend),
		DataDir:       firstNonEmpty(os.Getenv(KeyDataDir), DefaultDataDir),
		MongoURI:      strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:       strings.TrimSpace(os.Getenv(KeyMongoDB)),
		StateBackend:  firstNonEmpty(normalizeEnv(os.Getenv(KeyStateBackend)), DefaultStateBackend),
		RedisAddr:     strings.TrimSpace(os.Getenv(KeyRedisAddr)),
		RedisPassword: os.Getenv(KeyRedisPassword),
		StateTTL:      DefaultStateTTL,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}

	adminRaw := strings.TrimSpace(os.Getenv(KeyBootstrapAdmin))
	if adminRaw == "" {
		missing = append(missing, KeyBootstrapAdmin)
	} else {
		if _, parseErr := strconv.ParseInt(adminRaw, 10, 64); parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyBootstrapAdmin, parseErr)
		}
		cfg.BootstrapAdmin = adminRaw
	}

	switch cfg.StoreBackend {
	case StoreBackendFile:
	case StoreBackendMongo:
		if cfg.MongoURI == "" {
			missing = append(missing, KeyMongoURI)
		}
		if cfg.MongoDB == "" {
			missing = append(missing, KeyMongoDB)
		}
	default:
		return Config{}, fmt.Errorf("invalid %s: must be %q or %q", KeyStoreBackend, StoreBackendFile, StoreBackendMongo)
	}

	switch cfg.StateBackend {
	case StateBackendMemory:
	case StateBackendRedis:
		if cfg.RedisAddr == "" {
			missing = append(missing, KeyRedisAddr)
		}
	default:
		return Config{}, fmt.Errorf("invalid %s: must be %q or %q", KeyStateBackend, StateBackendMemory, StateBackendRedis)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if cfg.StoreBackend == StoreBackendMongo {
		if err := validateMongoURI(cfg.MongoURI); err != nil {
			return Config{}, err
		}
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	if strictRaw := strings.TrimSpace(os.Getenv(KeyStoreStrict)); strictRaw != "" {
		strict, parseErr := strconv.ParseBool(strictRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyStoreStrict, parseErr)
		}
		cfg.StoreStrict = strict
	}

	if dbRaw := strings.TrimSpace(os.Getenv(KeyRedisDB)); dbRaw != "" {
		db, parseErr := strconv.Atoi(dbRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyRedisDB, parseErr)
		}
		if db < 0 {
			return Config{}, fmt.Errorf("%s must not be negative", KeyRedisDB)
		}
		cfg.RedisDB = db
	}

	if ttlRaw := strings.TrimSpace(os.Getenv(KeyStateTTL)); ttlRaw != "" {
		ttl, parseErr := time.ParseDuration(ttlRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyStateTTL, parseErr)
		}
		if ttl <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyStateTTL)
		}
		cfg.StateTTL = ttl
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// FormatRedacted renders the configuration for operators with secrets masked.
func FormatRedacted(cfg Config) string {
	lines := []string{
		"telegram_token: " + redactSecret(cfg.TelegramToken),
		"bootstrap_admin: " + cfg.BootstrapAdmin,
		"app_env: " + cfg.AppEnv,
		"log_level: " + cfg.LogLevel,
		"http_port: " + strconv.Itoa(cfg.HTTPPort),
		"store_backend: " + cfg.StoreBackend,
	}

	switch cfg.StoreBackend {
	case StoreBackendMongo:
		lines = append(lines,
			"mongo_uri: "+redactURI(cfg.MongoURI),
			"mongo_db: "+cfg.MongoDB,
		)
	default:
		lines = append(lines, "data_dir: "+cfg.DataDir)
	}
	lines = append(lines,
		"store_strict: "+strconv.FormatBool(cfg.StoreStrict),
		"state_backend: "+cfg.StateBackend,
	)

	if cfg.StateBackend == StateBackendRedis {
		lines = append(lines,
			"redis_addr: "+cfg.RedisAddr,
			"redis_password: "+redactSecret(cfg.RedisPassword),
			"redis_db: "+strconv.Itoa(cfg.RedisDB),
			"state_ttl: "+cfg.StateTTL.String(),
		)
	}

	return strings.Join(lines, "\n")
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func validateMongoURI(raw string) error {
	if strings.HasPrefix(raw, "mongodb://") || strings.HasPrefix(raw, "mongodb+srv://") {
		return nil
	}

	return fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURI)
}

func redactSecret(value string) string {
	if value == "" {
		return "(unset)"
	}
	if len(value) <= 4 {
		return "...redacted"
	}
	return value[:4] + "...redacted"
}

func redactURI(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.User == nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
