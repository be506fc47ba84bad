// Package config reads the service settings from the environment. Every key
// may be given with the COGNITOFORGE_ prefix, which wins over the bare name.
package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cognitoforge/redteam-backend/database"
	"github.com/cognitoforge/redteam-backend/internal/cache"
	"github.com/cognitoforge/redteam-backend/internal/depscan"
	"github.com/cognitoforge/redteam-backend/internal/genai"
	"github.com/cognitoforge/redteam-backend/internal/objectstore"
	"github.com/cognitoforge/redteam-backend/util"
	"github.com/joho/godotenv"
)

// Prefix is the namespace for environment keys.
const Prefix = "COGNITOFORGE_"

// DefaultEnvFiles are loaded, when present, before reading the environment.
var DefaultEnvFiles = []string{".env", "backend/.env"}

// localOrigins are always allowed by CORS; ALLOWED_ORIGINS adds to them.
var localOrigins = []string{
	"http://localhost:3000",
	"http://localhost:3001",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:3001",
	"http://127.0.0.1:5173",
}

// Config is the full service configuration.
type Config struct {
	Port           string
	DataDir        string
	AllowedOrigins string
	CacheTTL       time.Duration
	Workers        int
	RulesFile      string
	GitHubToken    string

	UseGemini bool
	Gemini    genai.Config

	DependencyAudit bool
	OSVURL          string

	Store       database.Config
	ObjectStore objectstore.Config
}

// ReposDir is where ingested repositories live.
func (c Config) ReposDir() string {
	return filepath.Join(c.DataDir, "repos")
}

// SimulationsDir is where run records are written.
func (c Config) SimulationsDir() string {
	return filepath.Join(c.DataDir, "simulations")
}

// Load reads DefaultEnvFiles and then the environment.
func Load() Config {
	LoadFiles(DefaultEnvFiles...)
	return FromEnv()
}

// LoadFiles loads env files that exist. Variables already set are kept.
func LoadFiles(files ...string) {
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// FromEnv builds a Config from the current environment.
func FromEnv() Config {
	cfg := Config{
		Port:           str("MS_PORT", "8080"),
		DataDir:        str("DATA_DIR", "data"),
		AllowedOrigins: origins(str("ALLOWED_ORIGINS", "")),
		CacheTTL:       duration("CACHE_TTL", cache.DefaultTTL),
		Workers:        integer("WORKERS", 8),
		RulesFile:      str("RULES_FILE", ""),
		GitHubToken:    str("GITHUB_TOKEN", ""),

		UseGemini: boolean("USE_GEMINI", false),
		Gemini: genai.Config{
			APIKey:  str("GEMINI_API_KEY", ""),
			Model:   str("GEMINI_MODEL", genai.DefaultModel),
			BaseURL: str("GEMINI_BASE_URL", genai.DefaultBaseURL),
		},

		DependencyAudit: boolean("DEPENDENCY_AUDIT", false),
		OSVURL:          str("OSV_URL", depscan.DefaultOSVURL),

		Store: database.Config{
			ArangoURL:      str("ARANGO_URL", ""),
			ArangoUser:     str("ARANGO_USER", "root"),
			ArangoPass:     str("ARANGO_PASS", ""),
			ArangoDatabase: str("ARANGO_DB", "redteam"),
			PostgresURL:    postgresURL(),
			ConnectRetries: uint64(integer("STORE_CONNECT_RETRIES", 5)),
			Timeout:        duration("STORE_TIMEOUT", 10*time.Second),
		},

		ObjectStore: objectstore.Config{
			Endpoint:  str("S3_ENDPOINT", ""),
			AccessKey: str("S3_ACCESS_KEY", ""),
			SecretKey: str("S3_SECRET_KEY", ""),
			UseSSL:    boolean("S3_USE_SSL", true),
			Bucket:    str("ARCHIVE_BUCKET", "redteam-archives"),
		},
	}
	cfg.Store.Driver = storeDriver(cfg.Store)
	return cfg
}

// storeDriver honours STORE_DRIVER, otherwise picks the driver whose
// connection settings are present.
func storeDriver(s database.Config) string {
	if d := str("STORE_DRIVER", ""); d != "" {
		return strings.ToLower(strings.TrimSpace(d))
	}
	switch {
	case s.PostgresURL != "":
		return database.DriverPostgres
	case s.ArangoURL != "":
		return database.DriverArango
	default:
		return database.DriverNone
	}
}

// postgresURL returns DATABASE_URL or a DSN assembled from the DB_* keys.
func postgresURL() string {
	if dsn := str("DATABASE_URL", ""); dsn != "" {
		return dsn
	}
	host := str("DB_HOST", "")
	if host == "" {
		return ""
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(str("DB_USER", "postgres"), str("DB_PASSWORD", "")),
		Host:     net.JoinHostPort(host, str("DB_PORT", "5432")),
		Path:     "/" + str("DB_NAME", "postgres"),
		RawQuery: "sslmode=" + str("DB_SSLMODE", "require"),
	}
	return u.String()
}

func origins(extra string) string {
	seen := make(map[string]struct{}, len(localOrigins))
	out := make([]string, 0, len(localOrigins))
	add := func(o string) {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			return
		}
		if _, ok := seen[o]; ok {
			return
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	for _, o := range localOrigins {
		add(o)
	}
	for _, o := range strings.Split(extra, ",") {
		add(o)
	}
	return strings.Join(out, ",")
}

func str(key, defVal string) string {
	return util.GetEnvDefault(Prefix+key, util.GetEnvDefault(key, defVal))
}

func boolean(key string, defVal bool) bool {
	return util.GetEnvBool(Prefix+key, util.GetEnvBool(key, defVal))
}

func integer(key string, defVal int) int {
	return util.GetEnvInt(Prefix+key, util.GetEnvInt(key, defVal))
}

// duration accepts Go durations ("90s") or a bare number of seconds.
func duration(key string, defVal time.Duration) time.Duration {
	raw := strings.TrimSpace(str(key, ""))
	if raw == "" {
		return defVal
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return defVal
}

// String renders the config for startup logging with secrets masked.
func (c Config) String() string {
	return fmt.Sprintf("port=%s data_dir=%s store=%s gemini=%t audit=%t archive_mirror=%t cache_ttl=%s",
		c.Port, c.DataDir, c.Store.Driver, c.UseGemini && c.Gemini.APIKey != "",
		c.DependencyAudit, c.ObjectStore.Enabled(), c.CacheTTL)
}
