package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/Ramsey-B/fern/internal/database"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/internal/tracing/exporters"
	"github.com/Ramsey-B/fern/pkg/blocking"
	"github.com/Ramsey-B/fern/pkg/clustering"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/records"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/runstatus"
	"github.com/Ramsey-B/fern/pkg/similarity"
)

type Config struct {
	AppName                       string `env:"APP_NAME" env-default:"fern-api"`
	Version                       string `env:"APP_VERSION" env-default:"dev"`
	Port                          int    `env:"PORT" env-default:"3004" validate:"min=1,max=65535"`
	LogLevel                      string `env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	PrettyLogs                    bool   `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int    `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"300"`
	HttpServerReadTimeoutSeconds  int    `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"60"`
	HttpServerIdleTimeoutSeconds  int    `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerBodyLimit           string `env:"HTTP_SERVER_BODY_LIMIT" env-default:"64M"`
	StartupMaxAttempts            int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5" validate:"min=1"`

	// PostgreSQL
	DatabaseEnabled             bool          `env:"DB_ENABLED" env-default:"false"`
	DatabaseHost                string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                int           `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName            string        `env:"DB_USER_NAME" env-default:"postgres"`
	DatabasePassword            string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                string        `env:"DB_NAME" env-default:"fern"`
	DatabaseSSLMode             string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns        int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns        int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime     time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10m"`
	DatabaseMigrationFolderPath string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion    uint          `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce      int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrateOnStart      bool          `env:"DB_MIGRATE_ON_START" env-default:"true"`

	// Redis run progress
	RedisEnabled     bool          `env:"REDIS_ENABLED" env-default:"false"`
	RedisHost        string        `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort        int           `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword    string        `env:"REDIS_PASSWORD" env-default:""`
	RedisDB          int           `env:"REDIS_DB" env-default:"0"`
	RedisKeyPrefix   string        `env:"REDIS_KEY_PREFIX" env-default:"fern:run:"`
	RedisProgressTTL time.Duration `env:"REDIS_PROGRESS_TTL" env-default:"24h"`
	ProgressInterval time.Duration `env:"PROGRESS_INTERVAL" env-default:"1s"`

	// Kafka producer
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"linkage-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`

	// Graph database
	GraphEnabled    bool   `env:"GRAPH_ENABLED" env-default:"false"`
	GraphDBHost     string `env:"GRAPH_DB_HOST" env-default:"localhost"`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" env-default:""`
	GraphDBName     string `env:"GRAPH_DB_NAME" env-default:""`

	// Tracing
	TracingExporter string        `env:"TRACING_EXPORTER" env-default:"none" validate:"oneof=none console otlp"`
	OTLPEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol    string        `env:"OTEL_EXPORTER_OTLP_PROTOCOL" env-default:"grpc" validate:"oneof=grpc http"`
	OTLPInsecure    bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
	OTLPHeaders     string        `env:"OTEL_EXPORTER_OTLP_HEADERS" env-default:""`
	OTLPTimeout     time.Duration `env:"OTEL_EXPORTER_OTLP_TIMEOUT" env-default:"10s"`

	// Record columns
	GivenNameCol    string   `env:"GIVEN_NAME_COL" env-default:"strGName" validate:"required"`
	FamilyNameCol   string   `env:"FAMILY_NAME_COL" env-default:"strLName" validate:"required"`
	DOBCol          string   `env:"DOB_COL" env-default:"strDoB"`
	BirthYearCol    string   `env:"BIRTH_YEAR_COL" env-default:""`
	BirthMonthCol   string   `env:"BIRTH_MONTH_COL" env-default:""`
	BirthDayCol     string   `env:"BIRTH_DAY_COL" env-default:""`
	BirthplaceCol   string   `env:"BIRTHPLACE_COL" env-default:"strPoB"`
	ExternalIDCol   string   `env:"EXTERNAL_ID_COL" env-default:"prisoner_number"`
	KnownClusterCol string   `env:"KNOWN_CLUSTER_COL" env-default:"TD_number"`
	GroupByCols     []string `env:"GROUP_BY_COLS" env-default:"lObjId,lCountId"`

	// Scoring
	NameOnly         bool   `env:"NAME_ONLY" env-default:"false"`
	NonNamesOptional bool   `env:"NON_NAMES_OPTIONAL" env-default:"true"`
	DateMatcher      string `env:"DATE_MATCHER" env-default:"graded" validate:"oneof=graded parts"`
	WorkerCount      int    `env:"WORKER_COUNT" env-default:"0" validate:"min=0"`

	// Clustering
	BlockPrefixLen         int     `env:"BLOCK_PREFIX_LEN" env-default:"4" validate:"min=1"`
	BlockBandDivisor       int     `env:"BLOCK_BAND_DIVISOR" env-default:"2" validate:"min=1"`
	ClusterLinkage         string  `env:"CLUSTER_LINKAGE" env-default:"max" validate:"oneof=single average max"`
	ClusterCutoff          float64 `env:"CLUSTER_CUTOFF" env-default:"90" validate:"min=0,max=100"`
	ClusterIteration       string  `env:"CLUSTER_ITERATION" env-default:"fast" validate:"oneof=fast exhaustive"`
	AllowKnownClusterMerge bool    `env:"ALLOW_KNOWN_CLUSTER_MERGE" env-default:"false"`

	// Matching
	MatchTopN                  int     `env:"MATCH_TOP_N" env-default:"1" validate:"min=1"`
	MatchMinScore              float64 `env:"MATCH_MIN_SCORE" env-default:"80" validate:"min=0,max=100"`
	MatchAllowDuplicateTargets bool    `env:"MATCH_ALLOW_DUPLICATE_TARGETS" env-default:"true"`
	MatchBlockPrefixLen        int     `env:"MATCH_BLOCK_PREFIX_LEN" env-default:"2" validate:"min=1"`
	MatchBlockBandDivisor      int     `env:"MATCH_BLOCK_BAND_DIVISOR" env-default:"4" validate:"min=1"`
}

var validate = validator.New()

// Load reads an optional .env file and the environment, then validates the result
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and enumerations
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) Columns() records.Columns {
	return records.Columns{
		GivenName:   c.GivenNameCol,
		FamilyName:  c.FamilyNameCol,
		DateOfBirth: c.DOBCol,
		Birthplace:  c.BirthplaceCol,
		ExternalID:  c.ExternalIDCol,
		KnownKey:    c.KnownClusterCol,
		GroupBy:     trimAll(c.GroupByCols),
		BirthYear:   c.BirthYearCol,
		BirthMonth:  c.BirthMonthCol,
		BirthDay:    c.BirthDayCol,
	}
}

// ResolverOptions converts the linkage settings into engine configurations
func (c *Config) ResolverOptions() (resolver.Options, error) {
	linkage, err := clustering.ParseLinkage(c.ClusterLinkage)
	if err != nil {
		return resolver.Options{}, err
	}
	iteration, err := clustering.ParseIteration(c.ClusterIteration)
	if err != nil {
		return resolver.Options{}, err
	}

	return resolver.Options{
		Columns: c.Columns(),
		Similarity: similarity.Options{
			NameOnly:         c.NameOnly,
			NonNamesOptional: c.NonNamesOptional,
			DateMatcher:      similarity.DateMatcher(c.DateMatcher),
		},
		Clustering: clustering.Config{
			Linkage:                linkage,
			Cutoff:                 c.ClusterCutoff,
			Iteration:              iteration,
			AllowKnownClusterMerge: c.AllowKnownClusterMerge,
			Workers:                c.WorkerCount,
		},
		Blocking: blocking.Options{
			PrefixLen:   c.BlockPrefixLen,
			BandDivisor: c.BlockBandDivisor,
			Workers:     c.WorkerCount,
		},
		Matching: matching.Config{
			TopN:                  c.MatchTopN,
			MinScore:              c.MatchMinScore,
			AllowDuplicateTargets: c.MatchAllowDuplicateTargets,
			Blocking: blocking.Options{
				PrefixLen:   c.MatchBlockPrefixLen,
				BandDivisor: c.MatchBlockBandDivisor,
				Workers:     c.WorkerCount,
			},
			Workers: c.WorkerCount,
		},
		ProgressInterval: c.ProgressInterval,
	}, nil
}

func (c *Config) Database() database.Config {
	return database.Config{
		Host:         c.DatabaseHost,
		Port:         c.DatabasePort,
		User:         c.DatabaseUserName,
		Password:     c.DatabasePassword,
		Name:         c.DatabaseName,
		SSLMode:      c.DatabaseSSLMode,
		MaxOpenConns: c.DatabaseMaxOpenConns,
		MaxIdleConns: c.DatabaseMaxIdleConns,
		MaxLifetime:  c.DatabaseConnMaxLifetime,
	}
}

func (c *Config) Migration() database.MigrationConfig {
	return database.MigrationConfig{
		Folder:  c.DatabaseMigrationFolderPath,
		Version: c.DatabaseMigrationVersion,
		Force:   c.DatabaseMigrationForce,
	}
}

func (c *Config) Redis() runstatus.Config {
	return runstatus.Config{
		Host:      c.RedisHost,
		Port:      c.RedisPort,
		Password:  c.RedisPassword,
		DB:        c.RedisDB,
		KeyPrefix: c.RedisKeyPrefix,
		TTL:       c.RedisProgressTTL,
	}
}

func (c *Config) Kafka() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      trimAll(c.KafkaBrokers),
		Topic:        c.KafkaOutputTopic,
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: time.Duration(c.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}

func (c *Config) Graph() graph.Config {
	return graph.Config{
		Host:     c.GraphDBHost,
		Port:     c.GraphDBPort,
		Username: c.GraphDBUser,
		Password: c.GraphDBPassword,
		Database: c.GraphDBName,
	}
}

func (c *Config) Tracing() tracing.Config {
	return tracing.Config{
		ServiceName: c.AppName,
		Exporter:    c.TracingExporter,
		OTLP: exporters.OTLPConfig{
			Endpoint: c.OTLPEndpoint,
			Protocol: c.OTLPProtocol,
			Insecure: c.OTLPInsecure,
			Headers:  parseHeaders(c.OTLPHeaders),
			Timeout:  c.OTLPTimeout,
		},
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// parseHeaders reads "key=value,key2=value2"
func parseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return headers
}
