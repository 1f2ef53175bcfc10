package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Kafka client implementations.
const (
	ClientKafkaGo = "kafka-go"
	ClientSarama  = "sarama"
)

// Offset reset policies.
const (
	OffsetEarliest = "earliest"
	OffsetLatest   = "latest"
)

// Commit modes. CommitAfterForward ties the offset commit to the end of the
// forwarding attempt instead of the client's periodic auto-commit.
const (
	CommitAuto         = "auto"
	CommitAfterForward = "after-forward"
)

// Invocation transports.
const (
	TransportHTTP   = "http"
	TransportLambda = "lambda"
)

// Payload formats.
const (
	PayloadRaw        = "raw"
	PayloadKafkaEvent = "kafka-event"
)

const configPathEnv = "CONFIG_PATH"

// ErrInvalid wraps every validation failure returned by Load and Validate.
var ErrInvalid = errors.New("invalid configuration")

var validate = validator.New()

type Config struct {
	Kafka   KafkaConfig   `yaml:"kafka"`
	Invoker InvokerConfig `yaml:"invoker"`
	Logging LoggingConfig `yaml:"logging"`
}

type KafkaConfig struct {
	Brokers             []string      `yaml:"brokers" env:"KAFKA_BOOTSTRAP" env-default:"kafka:29092" env-separator:"," validate:"min=1,dive,required"`
	Topic               string        `yaml:"topic" env:"KAFKA_TOPIC" env-default:"user-created-topic" validate:"required"`
	GroupID             string        `yaml:"group_id" env:"KAFKA_GROUP" env-default:"lambda-invoker-group" validate:"required"`
	OffsetReset         string        `yaml:"offset_reset" env:"KAFKA_OFFSET_RESET" env-default:"earliest" validate:"oneof=earliest latest"`
	CommitMode          string        `yaml:"commit_mode" env:"KAFKA_COMMIT_MODE" env-default:"auto" validate:"oneof=auto after-forward"`
	CommitInterval      time.Duration `yaml:"commit_interval" env:"KAFKA_COMMIT_INTERVAL" env-default:"5s" validate:"gt=0"`
	Client              string        `yaml:"client" env:"KAFKA_CLIENT" env-default:"kafka-go" validate:"oneof=kafka-go sarama"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"KAFKA_HEALTH_CHECK_INTERVAL" env-default:"30s" validate:"gte=0"`
}

type InvokerConfig struct {
	URL           string        `yaml:"url" env:"LAMBDA_INVOKE_URL" env-default:"http://notification-service:8080/2015-03-31/functions/function/invocations" validate:"required,url"`
	Transport     string        `yaml:"transport" env:"INVOKER_TRANSPORT" env-default:"http" validate:"oneof=http lambda"`
	PayloadFormat string        `yaml:"payload_format" env:"INVOKER_PAYLOAD_FORMAT" env-default:"raw" validate:"oneof=raw kafka-event"`
	Timeout       time.Duration `yaml:"timeout" env:"INVOKER_TIMEOUT" env-default:"30s" validate:"gt=0"`
	FailurePause  time.Duration `yaml:"failure_pause" env:"INVOKER_FAILURE_PAUSE" env-default:"2s" validate:"gte=0"`
	FunctionName  string        `yaml:"function_name" env:"LAMBDA_FUNCTION_NAME" env-default:"function" validate:"required_if=Transport lambda"`
	Endpoint      string        `yaml:"endpoint" env:"LAMBDA_ENDPOINT" validate:"omitempty,url"`
	Region        string        `yaml:"region" env:"AWS_REGION" env-default:"us-east-1" validate:"required_if=Transport lambda"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text" validate:"oneof=text json"`
}

// Load reads an optional .env file, then the YAML file named by CONFIG_PATH
// (if any) and the environment, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	if path := os.Getenv(configPathEnv); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.Kafka.Brokers = parseBrokers(cfg.Kafka.Brokers)
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// String renders the configuration as YAML for the startup log.
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<unprintable config: %v>", err)
	}
	return string(data)
}

func (k KafkaConfig) StartFromEarliest() bool {
	return k.OffsetReset == OffsetEarliest
}

func (k KafkaConfig) AutoCommit() bool {
	return k.CommitMode == CommitAuto
}

func parseBrokers(brokers []string) []string {
	result := make([]string, 0, len(brokers))
	for _, broker := range brokers {
		for _, part := range strings.Split(broker, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}
