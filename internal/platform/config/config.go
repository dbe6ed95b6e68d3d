// Package config loads process configuration from an optional config.yaml
// and CUSTODIAN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	strutil "custodian/pkg/platform/strings"
)

// DevSigningKey is the identity token key used when none is configured.
// Regulated mode refuses to start with it.
const DevSigningKey = "dev-secret-key-change-in-production"

// StoreBackend selects the persistence implementation for the ledger.
type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StorePostgres StoreBackend = "postgres"
)

// Config is the full process configuration.
type Config struct {
	Server   Server
	Store    StoreBackend
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Ledger   LedgerConfig
	Logging  LoggingConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	RegulatedMode     bool
}

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrateOnBoot   bool
	TxTimeout       time.Duration
}

// RedisConfig configures the version cache connection.
// An empty URL disables the cache.
type RedisConfig struct {
	URL             string
	PoolSize        int
	MinIdleConns    int
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	VersionCacheTTL time.Duration
}

// KafkaConfig configures audit relay and consumption.
// An empty broker list disables the outbox worker and the consumer.
type KafkaConfig struct {
	Brokers          []string
	ClientID         string
	ConsumerGroup    string
	ComplianceTopic  string
	SecurityTopic    string
	OperationsTopic  string
	Partitions       int32
	Replication      int16
	OutboxInterval   time.Duration
	OutboxBatchSize  int
	ConsumerDisabled bool
}

// AuthConfig configures identity token validation.
type AuthConfig struct {
	SigningKey string
	Issuer     string
}

// LedgerConfig holds the tunable ledger policy.
type LedgerConfig struct {
	AllowPendingAuditAnnotations bool
	OpsSampleRate                float64
	SecurityBufferCapacity       int
	SecurityFlushInterval        time.Duration
}

// LoggingConfig selects level and output format.
type LoggingConfig struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.regulated_mode", false)

	v.SetDefault("store", string(StoreMemory))

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.migrate_on_boot", true)
	v.SetDefault("database.tx_timeout", 5*time.Second)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 2*time.Second)
	v.SetDefault("redis.read_timeout", time.Second)
	v.SetDefault("redis.write_timeout", time.Second)
	v.SetDefault("redis.version_cache_ttl", 10*time.Minute)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.client_id", "custodian")
	v.SetDefault("kafka.consumer_group", "custodian-compliance")
	v.SetDefault("kafka.compliance_topic", "custodian.audit.compliance")
	v.SetDefault("kafka.security_topic", "custodian.audit.security")
	v.SetDefault("kafka.operations_topic", "custodian.audit.operations")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.replication", 1)
	v.SetDefault("kafka.outbox_interval", time.Second)
	v.SetDefault("kafka.outbox_batch_size", 100)
	v.SetDefault("kafka.consumer_disabled", false)

	v.SetDefault("auth.signing_key", DevSigningKey)
	v.SetDefault("auth.issuer", "custodian")

	v.SetDefault("ledger.allow_pending_audit_annotations", true)
	v.SetDefault("ledger.ops_sample_rate", 1.0)
	v.SetDefault("ledger.security_buffer_capacity", 1024)
	v.SetDefault("ledger.security_flush_interval", 2*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads config.yaml from configPath when present, then applies
// CUSTODIAN_* environment overrides (CUSTODIAN_DATABASE_URL, CUSTODIAN_STORE, ...).
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix("CUSTODIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		Server: Server{
			Addr:              v.GetString("server.addr"),
			ReadHeaderTimeout: v.GetDuration("server.read_header_timeout"),
			ShutdownTimeout:   v.GetDuration("server.shutdown_timeout"),
			RegulatedMode:     v.GetBool("server.regulated_mode"),
		},
		Store: StoreBackend(strings.ToLower(v.GetString("store"))),
		Database: DatabaseConfig{
			URL:             v.GetString("database.url"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			MigrateOnBoot:   v.GetBool("database.migrate_on_boot"),
			TxTimeout:       v.GetDuration("database.tx_timeout"),
		},
		Redis: RedisConfig{
			URL:             v.GetString("redis.url"),
			PoolSize:        v.GetInt("redis.pool_size"),
			MinIdleConns:    v.GetInt("redis.min_idle_conns"),
			DialTimeout:     v.GetDuration("redis.dial_timeout"),
			ReadTimeout:     v.GetDuration("redis.read_timeout"),
			WriteTimeout:    v.GetDuration("redis.write_timeout"),
			VersionCacheTTL: v.GetDuration("redis.version_cache_ttl"),
		},
		Kafka: KafkaConfig{
			Brokers:          splitList(v.GetStringSlice("kafka.brokers")),
			ClientID:         v.GetString("kafka.client_id"),
			ConsumerGroup:    v.GetString("kafka.consumer_group"),
			ComplianceTopic:  v.GetString("kafka.compliance_topic"),
			SecurityTopic:    v.GetString("kafka.security_topic"),
			OperationsTopic:  v.GetString("kafka.operations_topic"),
			Partitions:       v.GetInt32("kafka.partitions"),
			Replication:      int16(v.GetInt("kafka.replication")),
			OutboxInterval:   v.GetDuration("kafka.outbox_interval"),
			OutboxBatchSize:  v.GetInt("kafka.outbox_batch_size"),
			ConsumerDisabled: v.GetBool("kafka.consumer_disabled"),
		},
		Auth: AuthConfig{
			SigningKey: v.GetString("auth.signing_key"),
			Issuer:     v.GetString("auth.issuer"),
		},
		Ledger: LedgerConfig{
			AllowPendingAuditAnnotations: v.GetBool("ledger.allow_pending_audit_annotations"),
			OpsSampleRate:                v.GetFloat64("ledger.ops_sample_rate"),
			SecurityBufferCapacity:       v.GetInt("ledger.security_buffer_capacity"),
			SecurityFlushInterval:        v.GetDuration("ledger.security_flush_interval"),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(v.GetString("logging.level")),
			Format: strings.ToLower(v.GetString("logging.format")),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the process cannot start with.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Database.URL == "" {
			return errors.New("config: database.url is required for the postgres store")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store)
	}
	if c.Auth.SigningKey == "" {
		return errors.New("config: auth.signing_key is required")
	}
	if c.Server.RegulatedMode && c.Auth.SigningKey == DevSigningKey {
		return errors.New("config: regulated mode requires a non-default auth.signing_key")
	}
	if c.Ledger.OpsSampleRate < 0 || c.Ledger.OpsSampleRate > 1 {
		return errors.New("config: ledger.ops_sample_rate must be within [0, 1]")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: unknown logging format %q", c.Logging.Format)
	}
	return nil
}

// KafkaEnabled reports whether brokers are configured.
func (c Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var parts []string
	for _, item := range in {
		parts = append(parts, strings.Split(item, ",")...)
	}
	return strutil.DedupeAndTrim(parts)
}
