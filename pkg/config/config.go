package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config agrupa toda a configuração do serviço
type Config struct {
	ServiceName  string
	Port         string
	OTLPEndpoint string

	Database          Database
	AnalyticsDatabase string

	Scan   Scan
	Sweeps []Sweep

	Kafka  Kafka
	Redis  Redis
	Brevo  Brevo
	Termii Termii
}

// Database contém os parâmetros de conexão do Postgres principal
type Database struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	MaxConns int32
}

// URL monta o DSN no formato aceito pelo pgx e pelo golang-migrate
func (d Database) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Scan define os limites de cada varredura
type Scan struct {
	BatchSize   int
	Concurrency int
}

// Sweep é uma varredura agendada com timeout próprio
type Sweep struct {
	Name               string        `yaml:"name"`
	Every              time.Duration `yaml:"every"`
	Timeout            time.Duration `yaml:"timeout"`
	WithoutOverlapping bool          `yaml:"without_overlapping"`
}

type Kafka struct {
	Brokers string
	Topic   string
}

// Enabled indica se há brokers configurados
func (k Kafka) Enabled() bool {
	return strings.TrimSpace(k.Brokers) != ""
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

func (r Redis) Enabled() bool {
	return r.Addr != ""
}

type Brevo struct {
	BaseURL     string
	APIKey      string
	SenderName  string
	SenderEmail string
}

type Termii struct {
	BaseURL  string
	APIKey   string
	SenderID string
}

// DefaultSweeps reproduz o agendamento de referência: varredura curta a cada
// 10 minutos e varredura diária com timeout de 24 horas
func DefaultSweeps() []Sweep {
	return []Sweep{
		{Name: "fast", Every: 10 * time.Minute, Timeout: 30 * time.Minute},
		{Name: "daily", Every: 24 * time.Hour, Timeout: 24 * time.Hour, WithoutOverlapping: true},
	}
}

// Load lê a configuração das variáveis de ambiente
func Load() (*Config, error) {
	db := Database{
		User:     getEnv("DATABASE_USER", "root"),
		Password: getEnv("DATABASE_PASSWORD", "pass"),
		Host:     getEnv("DATABASE_HOST", "localhost"),
		Port:     getEnv("DATABASE_PORT", "5432"),
		Name:     getEnv("DATABASE_NAME", "shop_db"),
	}

	maxConns, err := getEnvInt("DATABASE_MAX_CONNS", 10)
	if err != nil {
		return nil, err
	}
	db.MaxConns = int32(maxConns)

	batchSize, err := getEnvInt("SCAN_BATCH_SIZE", 100)
	if err != nil {
		return nil, err
	}
	concurrency, err := getEnvInt("SCAN_CONCURRENCY", 1)
	if err != nil {
		return nil, err
	}
	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServiceName:       getEnv("SERVICE_NAME", "order-lifecycle"),
		Port:              getEnv("PORT", "8080"),
		OTLPEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		Database:          db,
		AnalyticsDatabase: getEnv("ANALYTICS_DATABASE_URL", db.URL()),
		Scan: Scan{
			BatchSize:   batchSize,
			Concurrency: concurrency,
		},
		Sweeps: DefaultSweeps(),
		Kafka: Kafka{
			Brokers: getEnv("KAFKA_BROKERS", ""),
			Topic:   getEnv("KAFKA_TOPIC", "orders.lifecycle"),
		},
		Redis: Redis{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Brevo: Brevo{
			BaseURL:     getEnv("BREVO_BASE_URL", "https://api.brevo.com"),
			APIKey:      getEnv("BREVO_API_KEY", ""),
			SenderName:  getEnv("BREVO_SENDER_NAME", "Shop"),
			SenderEmail: getEnv("BREVO_SENDER_EMAIL", "no-reply@shop.local"),
		},
		Termii: Termii{
			BaseURL:  getEnv("TERMII_BASE_URL", "https://api.ng.termii.com"),
			APIKey:   getEnv("TERMII_API_KEY", ""),
			SenderID: getEnv("TERMII_SENDER_ID", "Shop"),
		},
	}

	if path := getEnv("SWEEPS_FILE", ""); path != "" {
		sweeps, err := LoadSweeps(path)
		if err != nil {
			return nil, err
		}
		cfg.Sweeps = sweeps
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifica limites que o restante do serviço assume
func (c *Config) Validate() error {
	if c.Scan.BatchSize <= 0 {
		return errors.New("SCAN_BATCH_SIZE must be positive")
	}
	if c.Scan.Concurrency <= 0 {
		return errors.New("SCAN_CONCURRENCY must be positive")
	}
	if c.Database.MaxConns <= 0 {
		return errors.New("DATABASE_MAX_CONNS must be positive")
	}
	return validateSweeps(c.Sweeps)
}

type sweepsFile struct {
	Sweeps []Sweep `yaml:"sweeps"`
}

// LoadSweeps lê as varreduras de um arquivo YAML
func LoadSweeps(path string) ([]Sweep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sweeps file: %w", err)
	}
	return ParseSweeps(data)
}

// ParseSweeps decodifica a lista de varreduras; durações usam o formato de
// time.ParseDuration ("10m", "24h")
func ParseSweeps(data []byte) ([]Sweep, error) {
	var file sweepsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sweeps file: %w", err)
	}
	if err := validateSweeps(file.Sweeps); err != nil {
		return nil, err
	}
	return file.Sweeps, nil
}

func validateSweeps(sweeps []Sweep) error {
	seen := make(map[string]bool, len(sweeps))
	for _, s := range sweeps {
		if s.Name == "" {
			return errors.New("sweep name is required")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicated sweep %q", s.Name)
		}
		seen[s.Name] = true
		if s.Every <= 0 || s.Timeout <= 0 {
			return fmt.Errorf("sweep %q: every and timeout must be positive", s.Name)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
