package config

import (
	"time"

	"PPDirect/data/database/mgo/mongoutil"
	"PPDirect/service/storage/redis"
	"PPDirect/tools/errs"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix of every environment variable, for example PPD_HTTP_ADDR.
const Prefix = "PPD"

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	Env    string `envconfig:"ENV" default:"dev" validate:"oneof=dev test prod"`
	NodeID int64  `envconfig:"NODE_ID" default:"1" validate:"gte=0,lte=1023"` // 雪花节点号

	HTTP  HTTPConfig       `envconfig:"HTTP"`
	Log   LogConfig        `envconfig:"LOG"`
	Store StoreConfig      `envconfig:"STORE"`
	Mongo mongoutil.Config `envconfig:"MONGO"`
	Redis redis.Config     `envconfig:"REDIS"`
	JWT   JWTConfig        `envconfig:"JWT"`
	NATS  NATSConfig       `envconfig:"NATS"`
	Kafka KafkaConfig      `envconfig:"KAFKA"`
	Relay RelayConfig      `envconfig:"RELAY"`
}

type HTTPConfig struct {
	Addr            string        `envconfig:"ADDR" default:":8080" validate:"required"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	RateLimit       float64       `envconfig:"RATE_LIMIT" default:"20" validate:"gte=0"` // 每个客户端每秒请求数，0 关闭
	RateBurst       int           `envconfig:"RATE_BURST" default:"40" validate:"gte=0"`
}

type LogConfig struct {
	Level string `envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	JSON  bool   `envconfig:"JSON" default:"false"`
}

type StoreConfig struct {
	Driver string `envconfig:"DRIVER" default:"mongo" validate:"oneof=mongo memory"`
}

type JWTConfig struct {
	Secret string        `envconfig:"SECRET" validate:"required,min=16"`
	TTL    time.Duration `envconfig:"TTL" default:"24h" validate:"gt=0"`
	Issuer string        `envconfig:"ISSUER" default:"ppdirect"`
}

type NATSConfig struct {
	URL           string `envconfig:"URL"`
	User          string `envconfig:"USER"`
	Password      string `envconfig:"PASSWORD"`
	SubjectPrefix string `envconfig:"SUBJECT_PREFIX" default:"ppdirect"`
	JetStream     bool   `envconfig:"JETSTREAM" default:"false"`
}

type KafkaConfig struct {
	Brokers     []string `envconfig:"BROKERS"`
	Topic       string   `envconfig:"TOPIC" default:"ppdirect.events"`
	EnsureTopic bool     `envconfig:"ENSURE_TOPIC" default:"false"`
}

type RelayConfig struct {
	SendQueue       int           `envconfig:"SEND_QUEUE" default:"256" validate:"gt=0"`   // 每个连接的待发帧上限
	EventBuffer     int           `envconfig:"EVENT_BUFFER" default:"1024" validate:"gt=0"` // 事件总线订阅缓冲
	ProfileCacheTTL time.Duration `envconfig:"PROFILE_CACHE_TTL" default:"10m"`
}

// Load reads an optional .env file, then PPD_* variables, then validates.
func Load(files ...string) (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load(files...)

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, errs.ErrArgs.WrapMsg(err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errs.ErrArgs.WrapMsg(err.Error())
	}
	if c.Store.Driver == StoreMongo {
		if err := c.Mongo.ValidateAndSetDefaults(); err != nil {
			return err
		}
	}
	return nil
}
