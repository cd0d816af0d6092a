// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Camunda   CamundaConfig   `mapstructure:"camunda"`
	AWS       AWSConfig       `mapstructure:"aws"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address            string   `mapstructure:"address"`
	StreamHeartbeat    int      `mapstructure:"stream_heartbeat_ms"`
	ShutdownTimeout    int      `mapstructure:"shutdown_timeout_ms"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

// RedisConfig points at the pub/sub and queue transport. URL takes the
// redis:// form; Password and DB override what the URL carries when set.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses     []string `mapstructure:"addresses"`
	Username      string   `mapstructure:"username"`
	Password      string   `mapstructure:"password"`
	PageViewIndex string   `mapstructure:"page_view_index"`
}

// Page-view backends.
const (
	BackendPostgres      = "postgres"
	BackendElasticsearch = "elasticsearch"
)

// AnalyticsConfig selects where page views are read from. Visitor sessions
// always live in Postgres.
type AnalyticsConfig struct {
	PageViewBackend string `mapstructure:"page_view_backend"`
	QueryTimeout    int    `mapstructure:"query_timeout_ms"`
}

// Delivery backends.
const (
	DeliveryRedis = "redis"
	DeliveryZeebe = "zeebe"
	DeliverySNS   = "sns"
)

type DeliveryConfig struct {
	Backend        string `mapstructure:"backend"`
	RedisKey       string `mapstructure:"redis_key"`
	PublishTimeout int    `mapstructure:"publish_timeout_ms"`
}

type CamundaConfig struct {
	BrokerAddress string `mapstructure:"broker_address"`
	ProcessID     string `mapstructure:"process_id"`
	JobType       string `mapstructure:"job_type"`
	MaxJobsActive int    `mapstructure:"max_jobs_active"`
	Timeout       int    `mapstructure:"timeout"` // milliseconds
}

type AWSConfig struct {
	Region      string `mapstructure:"region"`
	SNSTopicARN string `mapstructure:"sns_topic_arn"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
