package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Replay holds the options handed to the loader and the sampler. It can be
// read from a YAML file (REPLAY_CONFIG) and is then overridden by env vars.
type Replay struct {
	IDProperty       string     `yaml:"idProperty" validate:"required"`
	HeadingsProperty string     `yaml:"headingsProperty"`
	Mode             string     `yaml:"mode" validate:"oneof=circle timeloop"`
	Time             TimeWindow `yaml:"time"`
}

type TimeWindow struct {
	Auto  bool    `yaml:"auto"`
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
}

type Config struct {
	Source      string `validate:"oneof=file postgres"`
	TracksFile  string
	DatabaseURL string
	Dataset     string

	Replay Replay

	Transport       string `validate:"oneof=nats kafka stomp"`
	NATSURL         string
	KafkaBrokers    []string
	KafkaTopic      string
	STOMPAddr       string
	STOMPUser       string
	STOMPPassword   string
	TopicSeparator  string
	ServiceName     string `validate:"required"`
	RouteProperties []string

	PublishInterval time.Duration `validate:"gt=0"`
	LogSubjects     bool
	MetricsAddr     string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Replay: Replay{IDProperty: "id", Mode: "circle"},
	}

	if path := os.Getenv("REPLAY_CONFIG"); path != "" {
		r, err := loadReplayFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Replay = *r
	}
	if err := replayFromEnv(&cfg.Replay); err != nil {
		return nil, err
	}

	cfg.Source = strings.ToLower(getenvDefault("TRACKS_SOURCE", "file"))
	cfg.TracksFile = getenvDefault("TRACKS_FILE", "resources/tracks.json")
	cfg.Dataset = os.Getenv("TRACKS_DATASET")
	if cfg.Source == "postgres" {
		dsn, err := databaseURL()
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = dsn
	}

	cfg.Transport = strings.ToLower(getenvDefault("TRANSPORT", "nats"))
	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")
	cfg.KafkaBrokers = splitList(getenvDefault("KAFKA_BROKERS", "127.0.0.1:9092"))
	cfg.KafkaTopic = getenvDefault("KAFKA_TOPIC", "tracks")
	cfg.STOMPAddr = getenvDefault("STOMP_ADDR", "127.0.0.1:61613")
	cfg.STOMPUser = os.Getenv("STOMP_USER")
	cfg.STOMPPassword = os.Getenv("STOMP_PASSWORD")
	cfg.TopicSeparator = getenvDefault("TOPIC_SEPARATOR", "/")
	cfg.ServiceName = getenvDefault("SERVICE_NAME", "flights")
	cfg.RouteProperties = splitList(getenvDefault("ROUTE_PROPERTIES", "from,to"))

	// Publish interval
	if v := os.Getenv("PUBLISH_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid PUBLISH_INTERVAL_MS: %q", v)
		}
		cfg.PublishInterval = time.Duration(ms) * time.Millisecond
	} else {
		cfg.PublishInterval = time.Second
	}

	// Debug logging for publish subjects
	cfg.LogSubjects = parseBool(os.Getenv("LOG_SUBJECTS"))

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadReplayFile(path string) (*Replay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay config: %w", err)
	}
	r := &Replay{IDProperty: "id", Mode: "circle"}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parse replay config %s: %w", path, err)
	}
	return r, nil
}

func replayFromEnv(r *Replay) error {
	if v := os.Getenv("ID_PROPERTY"); v != "" {
		r.IDProperty = v
	}
	if v, ok := os.LookupEnv("HEADINGS_PROPERTY"); ok {
		r.HeadingsProperty = strings.TrimSpace(v)
	}
	if v := os.Getenv("REPLAY_MODE"); v != "" {
		r.Mode = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("TIME_AUTO"); v != "" {
		r.Time.Auto = parseBool(v)
	}
	for key, dst := range map[string]*float64{"TIME_START": &r.Time.Start, "TIME_END": &r.Time.End} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %q", key, v)
		}
		*dst = f
	}
	return nil
}

func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	t := cfg.Replay.Time
	if cfg.Replay.Mode == "timeloop" && !t.Auto && t.End <= t.Start {
		return fmt.Errorf("timeloop window end (%v) must be after start (%v)", t.End, t.Start)
	}
	return nil
}

// databaseURL prefers DATABASE_URL / PG_DSN, else builds a DSN from PG* vars.
func databaseURL() (string, error) {
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		return dsn, nil
	}
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	db := os.Getenv("PGDATABASE")
	if db == "" {
		return "", errors.New("PGDATABASE or DATABASE_URL must be set when TRACKS_SOURCE=postgres")
	}
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode), nil
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode), nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
