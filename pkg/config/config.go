package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App         AppConfig                  `mapstructure:"app"`
	DB          DBConfig                   `mapstructure:"db"`
	Redis       RedisConfig                `mapstructure:"redis"`
	Kafka       KafkaConfig                `mapstructure:"kafka"`
	Chain       ChainConfig                `mapstructure:"chain"`
	Directory   DirectoryConfig            `mapstructure:"directory"`
	Admin       AdminConfig                `mapstructure:"admin"`
	Settlement  SettlementConfig           `mapstructure:"settlement"`
	Notify      NotifyConfig               `mapstructure:"notify"`
	Communities map[string]CommunityConfig `mapstructure:"communities"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
	GrpcPort string `mapstructure:"grpc_port"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

// DSN 返回 gorm/pgx 使用的连接串
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.Host, c.User, c.Password, c.Name, c.Port)
}

// URL 返回 golang-migrate 使用的连接串
func (c DBConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Name)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

type ChainConfig struct {
	RpcUrl         string        `mapstructure:"rpc_url"`
	DefaultToken   string        `mapstructure:"default_token"`
	KeystorePath   string        `mapstructure:"keystore_path"` // 发奖热钱包 keystore (V3)
	Password       string        `mapstructure:"password"`      // 通常通过环境变量 CHAIN_PASSWORD 传入
	PrivateKey     string        `mapstructure:"private_key"`   // 仅开发环境使用
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	GasLimit       uint64        `mapstructure:"gas_limit"`
}

type DirectoryConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	ApiKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type AdminConfig struct {
	FIDs []int64 `mapstructure:"fids"`
}

type SettlementConfig struct {
	LeaseTTL           time.Duration `mapstructure:"lease_ttl"`
	TransferBudget     time.Duration `mapstructure:"transfer_budget"` // 为 0 时取 chain.confirm_timeout + 30s
	StaleApprovalAfter time.Duration `mapstructure:"stale_approval_after"`
}

type NotifyConfig struct {
	WebhookURL  string `mapstructure:"webhook_url"`
	Concurrency int    `mapstructure:"concurrency"`
}

// CommunityConfig 不同社区使用不同的奖励代币与质押合约
type CommunityConfig struct {
	Token         string `mapstructure:"token"`
	StakeContract string `mapstructure:"stake_contract"`
	StakeFunction string `mapstructure:"stake_function"`
	StakeDecimals int32  `mapstructure:"stake_decimals"`
}

var Global Config

func Init() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// 环境变量设置: CHAIN_RPC_URL -> chain.rpc_url
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := viper.Unmarshal(&Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

// Community 按名称取社区配置, 找不到时回退到 default
func (c Config) Community(name string) CommunityConfig {
	if cc, ok := c.Communities[strings.ToLower(name)]; ok {
		return cc
	}
	return c.Communities["default"]
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.http_port", "8080")
	viper.SetDefault("app.grpc_port", "50051")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.user", "settlement_user")
	viper.SetDefault("db.password", "settlement_password")
	viper.SetDefault("db.name", "settlement_db")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.mq_type", "redis")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})

	viper.SetDefault("chain.rpc_url", "https://mainnet.base.org")
	viper.SetDefault("chain.keystore_path", "payout.json")
	viper.SetDefault("chain.confirm_timeout", 90*time.Second)
	viper.SetDefault("chain.poll_interval", 2*time.Second)
	viper.SetDefault("chain.gas_limit", 100000)

	viper.SetDefault("directory.base_url", "https://api.neynar.com")
	viper.SetDefault("directory.timeout", 10*time.Second)
	viper.SetDefault("directory.cache_ttl", 10*time.Minute)

	viper.SetDefault("settlement.lease_ttl", 10*time.Minute)
	viper.SetDefault("settlement.stale_approval_after", 15*time.Minute)

	viper.SetDefault("notify.concurrency", 5)
}
