// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 是服务的全部启动配置，来自 YAML 文件并允许环境变量覆盖。
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Infra   InfraConfig   `yaml:"infra"`
	Catalog CatalogConfig `yaml:"catalog"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type InfraConfig struct {
	Jaeger JaegerConfig `yaml:"jaeger"`
	Mysql  MysqlConfig  `yaml:"mysql"`
	Redis  RedisConfig  `yaml:"redis"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	Nacos  NacosConfig  `yaml:"nacos"`
}

type JaegerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

type MysqlConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	PlanTopic  string   `yaml:"planTopic"`
	OrderTopic string   `yaml:"orderTopic"` // 为空时不启动核销消费者
	// OrderDLTTopic 为空时，核销失败的消息会一直重试而不提交
	OrderDLTTopic  string `yaml:"orderDltTopic"`
	RedeemAttempts int    `yaml:"redeemAttempts"`
	GroupID        string `yaml:"groupId"`
}

type NacosConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
	IP          string `yaml:"ip"` // 为空时自动探测本机出口 IP
}

// CatalogConfig 是商品目录服务（collection 成员查询）的地址。
// ServiceName 非空且启用了 Nacos 时，通过服务发现获取地址，否则使用 BaseURL。
type CatalogConfig struct {
	BaseURL     string        `yaml:"baseUrl"`
	ServiceName string        `yaml:"serviceName"`
	Timeout     time.Duration `yaml:"timeout"`
	CacheTTL    time.Duration `yaml:"cacheTtl"`
}

// DSN 使用 go-sql-driver 生成连接串，parseTime 保证 DATETIME 能扫描进 time.Time。
func (m MysqlConfig) DSN() string {
	c := mysql.NewConfig()
	c.User = m.User
	c.Passwd = m.Password
	c.Net = "tcp"
	c.Addr = m.Host + ":" + strconv.Itoa(m.Port)
	c.DBName = m.Database
	c.ParseTime = true
	c.Loc = time.UTC
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c.FormatDSN()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8087, ShutdownTimeout: 10 * time.Second},
		Log:    LogConfig{Level: "info"},
		Infra: InfraConfig{
			Jaeger: JaegerConfig{Endpoint: "http://localhost:14268/api/traces"},
			Mysql:  MysqlConfig{Host: "localhost", Port: 3306, User: "root", Database: "promotion"},
			Redis:  RedisConfig{Addr: "localhost:6379"},
			Kafka:  KafkaConfig{Brokers: []string{"localhost:9092"}, PlanTopic: "promotion-plan-evaluated", GroupID: "promotion-service", RedeemAttempts: 5},
			Nacos:  NacosConfig{ServerAddrs: "localhost:8848", Group: "DEFAULT_GROUP"},
		},
		Catalog: CatalogConfig{BaseURL: "http://localhost:8090", Timeout: 2 * time.Second, CacheTTL: 5 * time.Minute},
	}
}

// LoadConfig 读取 YAML 配置。文件不存在时使用默认值，随后应用环境变量覆盖。
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "failed to parse config file %s", path)
			}
		case os.IsNotExist(err):
		default:
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := getEnv("PORT", ""); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	cfg.Infra.Mysql.Host = getEnv("MYSQL_HOST", cfg.Infra.Mysql.Host)
	cfg.Infra.Mysql.Password = getEnv("MYSQL_PASSWORD", cfg.Infra.Mysql.Password)
	cfg.Infra.Redis.Addr = getEnv("REDIS_ADDR", cfg.Infra.Redis.Addr)
	cfg.Infra.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Infra.Redis.Password)
	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	cfg.Infra.Kafka.OrderTopic = getEnv("KAFKA_ORDER_TOPIC", cfg.Infra.Kafka.OrderTopic)
	cfg.Infra.Kafka.OrderDLTTopic = getEnv("KAFKA_ORDER_DLT_TOPIC", cfg.Infra.Kafka.OrderDLTTopic)
	cfg.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.ServerAddrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)
	cfg.Catalog.BaseURL = getEnv("CATALOG_BASE_URL", cfg.Catalog.BaseURL)
}

var (
	currentConfig *Config
	configMu      sync.RWMutex
)

// GetCurrentConfig 返回 Init 加载的配置。
func GetCurrentConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	if currentConfig == nil {
		return defaultConfig()
	}
	return currentConfig
}

func setCurrentConfig(cfg *Config) {
	configMu.Lock()
	currentConfig = cfg
	configMu.Unlock()
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
