package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Storage     StorageConfig     `yaml:"storage"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Redis       RedisConfig       `yaml:"redis"`
	FreightDesk FreightDeskConfig `yaml:"freightdesk"`
	Worker      WorkerConfig      `yaml:"worker"`
	Maps        MapsConfig        `yaml:"maps"`
	Vocabulary  VocabularyConfig  `yaml:"vocabulary"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnString builds the postgres URL; ssl_mode defaults to disable.
func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

type StorageConfig struct {
	// Driver is "postgres" (default) or "memory".
	Driver string `yaml:"driver"`
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	StatusChangedTopicName string `yaml:"status_changed_topic_name"`
	RouteResolvedTopicName string `yaml:"route_resolved_topic_name"`
	PublishRetries         int    `yaml:"publish_retries"`
}

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

type RedisConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type FreightDeskConfig struct {
	HTTPAddr               string `yaml:"http_addr"`
	KafkaConsumerGroup     string `yaml:"kafka_consumer_group"`
	CurrentOrderTTLSeconds int    `yaml:"current_order_ttl_seconds"`
	MaxTrackingPageSize    int    `yaml:"max_tracking_page_size"`

	// AuthTokens maps a bearer token to the actor recorded on events. Empty disables auth.
	AuthTokens map[string]string `yaml:"auth_tokens"`
}

type WorkerConfig struct {
	HTTPAddr            string `yaml:"http_addr"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	BatchSize           int    `yaml:"batch_size"`
	Concurrency         int    `yaml:"concurrency"`
	LeaseSeconds        int    `yaml:"lease_seconds"`
	RateLimitPerMinute  int    `yaml:"rate_limit_per_minute"`

	// Scheduling (optional). Defaults: no route re-check after 7 days, backoff 5/15/30/60 minutes.
	NoRouteRecheckSeconds int `yaml:"no_route_recheck_seconds"`
	Backoff1Seconds       int `yaml:"backoff_1_seconds"`
	Backoff2Seconds       int `yaml:"backoff_2_seconds"`
	Backoff3Seconds       int `yaml:"backoff_3_seconds"`
	Backoff4Seconds       int `yaml:"backoff_4_seconds"`
}

type MapsConfig struct {
	// Provider is "google" (default) or "fake".
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Country        string `yaml:"country"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// VocabularyConfig overrides the built-in status vocabulary when Statuses is set.
type VocabularyConfig struct {
	Version            int                 `yaml:"version"`
	Initial            string              `yaml:"initial"`
	Statuses           []string            `yaml:"statuses"`
	Terminal           []string            `yaml:"terminal"`
	Active             []string            `yaml:"active"`
	Assignable         []string            `yaml:"assignable"`
	RequiresAssignment []string            `yaml:"requires_assignment"`
	SetsDeliveryDate   []string            `yaml:"sets_delivery_date"`
	Transitions        map[string][]string `yaml:"transitions"`
	Aliases            map[string]string   `yaml:"aliases"`
	Priorities         []string            `yaml:"priorities"`
	DefaultPriority    string              `yaml:"default_priority"`

	// Strict makes startup fail when stored labels are missing from the vocabulary.
	Strict bool `yaml:"strict"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
