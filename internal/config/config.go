package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	xerrors "Jarvis-Orchestrator/internal/errors"
	"Jarvis-Orchestrator/internal/eventlog"
	"Jarvis-Orchestrator/internal/policy"
	"Jarvis-Orchestrator/internal/storage/mysql"
	"Jarvis-Orchestrator/pkg/logger"
)

// EnvConfigPath 覆盖默认配置文件路径的环境变量。
const EnvConfigPath = "JARVIS_CONFIG"

// DefaultPath 是未设置 JARVIS_CONFIG 时使用的配置文件。
var DefaultPath = filepath.Join("configs", "jarvis.yaml")

// Config 描述了 Jarvis 在启动阶段需要加载的全部配置。
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server" json:"server"`
	Logging   logger.Config   `yaml:"logging" toml:"logging" json:"logging"`
	Runtime   RuntimeConfig   `yaml:"runtime" toml:"runtime" json:"runtime"`
	EventLog  EventLogConfig  `yaml:"event_log" toml:"event_log" json:"event_log"`
	Approvals ApprovalConfig  `yaml:"approvals" toml:"approvals" json:"approvals"`
	Policy    PolicyConfig    `yaml:"policy" toml:"policy" json:"policy"`
	Dispatch  DispatchConfig  `yaml:"dispatch" toml:"dispatch" json:"dispatch"`
	Agents    AgentsConfig    `yaml:"agents" toml:"agents" json:"agents"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics" json:"metrics"`
}

// ServerConfig 控制 REST API 的监听地址。
type ServerConfig struct {
	Address             string `yaml:"address" toml:"address" json:"address"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds" toml:"read_timeout_seconds" json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds" toml:"write_timeout_seconds" json:"write_timeout_seconds"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `yaml:"data_dir" toml:"data_dir" json:"data_dir"`
}

// EventLogConfig 描述事件日志文件与刷盘策略。
type EventLogConfig struct {
	Path       string `yaml:"path" toml:"path" json:"path"`
	Durability string `yaml:"durability" toml:"durability" json:"durability"`
	BatchSize  int    `yaml:"batch_size" toml:"batch_size" json:"batch_size"`
}

// Mode 将配置解析为事件日志的刷盘策略。
func (c EventLogConfig) Mode() (eventlog.Durability, error) {
	return eventlog.ParseDurability(c.Durability, c.BatchSize)
}

// ApprovalConfig 选择授权日志的存储后端。
type ApprovalConfig struct {
	Driver string      `yaml:"driver" toml:"driver" json:"driver"`
	Path   string      `yaml:"path" toml:"path" json:"path"`
	MySQL  MySQLConfig `yaml:"mysql" toml:"mysql" json:"mysql"`
}

// MySQLConfig 描述 MySQL 连接池参数。
type MySQLConfig struct {
	DSN                    string `yaml:"dsn" toml:"dsn" json:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns" toml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns" toml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `yaml:"conn_max_lifetime_seconds" toml:"conn_max_lifetime_seconds" json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `yaml:"conn_max_idle_time_seconds" toml:"conn_max_idle_time_seconds" json:"conn_max_idle_time_seconds"`
}

// Options 转换为 storage/mysql 的连接参数。
func (c MySQLConfig) Options() mysql.Config {
	return mysql.Config{
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: time.Duration(c.ConnMaxLifetimeSeconds) * time.Second,
		ConnMaxIdleTime: time.Duration(c.ConnMaxIdleTimeSeconds) * time.Second,
	}
}

// PolicyConfig 覆盖策略引擎的阈值。未填写的字段沿用内置默认值。
type PolicyConfig struct {
	BlockedHours        []int    `yaml:"blocked_hours" toml:"blocked_hours" json:"blocked_hours"`
	BatteryThreshold    *float64 `yaml:"battery_threshold" toml:"battery_threshold" json:"battery_threshold"`
	ConfidenceThreshold *float64 `yaml:"confidence_threshold" toml:"confidence_threshold" json:"confidence_threshold"`
}

// EngineOptions 将配置转换为策略引擎选项。
func (c PolicyConfig) EngineOptions() []policy.Option {
	var opts []policy.Option
	if len(c.BlockedHours) == 2 {
		opts = append(opts, policy.WithBlockedHours(c.BlockedHours[0], c.BlockedHours[1]))
	}
	if c.BatteryThreshold != nil {
		opts = append(opts, policy.WithBatteryThreshold(*c.BatteryThreshold))
	}
	if c.ConfidenceThreshold != nil {
		opts = append(opts, policy.WithConfidenceThreshold(*c.ConfidenceThreshold))
	}
	return opts
}

// DispatchConfig 描述异步请求的存储、队列与并发度。
type DispatchConfig struct {
	Store   DispatchStoreConfig `yaml:"store" toml:"store" json:"store"`
	Queue   QueueConfig         `yaml:"queue" toml:"queue" json:"queue"`
	Workers int                 `yaml:"workers" toml:"workers" json:"workers"`
}

// DispatchStoreConfig 选择请求状态的存储后端。
type DispatchStoreConfig struct {
	Driver string      `yaml:"driver" toml:"driver" json:"driver"`
	MySQL  MySQLConfig `yaml:"mysql" toml:"mysql" json:"mysql"`
}

// QueueConfig 选择请求队列实现。
type QueueConfig struct {
	Driver   string         `yaml:"driver" toml:"driver" json:"driver"`
	Size     int            `yaml:"size" toml:"size" json:"size"`
	Redis    RedisConfig    `yaml:"redis" toml:"redis" json:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq" toml:"rabbitmq" json:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列参数。
type RedisConfig struct {
	Address          string `yaml:"address" toml:"address" json:"address"`
	Password         string `yaml:"password" toml:"password" json:"password"`
	DB               int    `yaml:"db" toml:"db" json:"db"`
	Queue            string `yaml:"queue" toml:"queue" json:"queue"`
	BlockWaitSeconds int    `yaml:"block_wait_seconds" toml:"block_wait_seconds" json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列参数。
type RabbitMQConfig struct {
	URL        string `yaml:"url" toml:"url" json:"url"`
	Queue      string `yaml:"queue" toml:"queue" json:"queue"`
	Prefetch   int    `yaml:"prefetch" toml:"prefetch" json:"prefetch"`
	Durable    bool   `yaml:"durable" toml:"durable" json:"durable"`
	AutoDelete bool   `yaml:"auto_delete" toml:"auto_delete" json:"auto_delete"`
}

// AgentsConfig 配置内置提供方。
type AgentsConfig struct {
	MusicDir      string       `yaml:"music_dir" toml:"music_dir" json:"music_dir"`
	StreamBaseURL string       `yaml:"stream_base_url" toml:"stream_base_url" json:"stream_base_url"`
	SearchBaseURL string       `yaml:"search_base_url" toml:"search_base_url" json:"search_base_url"`
	PlayerCommand string       `yaml:"player_command" toml:"player_command" json:"player_command"`
	DryRun        bool         `yaml:"dry_run" toml:"dry_run" json:"dry_run"`
	Ledger        LedgerConfig `yaml:"ledger" toml:"ledger" json:"ledger"`
}

// LedgerConfig 配置 chain_agent 使用的以太坊节点。RPCURL 为空时不注册该 Agent。
type LedgerConfig struct {
	Name   string `yaml:"name" toml:"name" json:"name"`
	RPCURL string `yaml:"rpc_url" toml:"rpc_url" json:"rpc_url"`
	Notes  string `yaml:"notes" toml:"notes" json:"notes"`
}

// MetricsConfig 控制 Prometheus 指标暴露。
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Address string `yaml:"address" toml:"address" json:"address"`
}

// PathFromEnv 返回 JARVIS_CONFIG 指定的路径，未设置时返回 DefaultPath。
func PathFromEnv() string {
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		return path
	}
	return DefaultPath
}

// Load 按扩展名解析 YAML、TOML 或 JSON 配置文件，并补齐默认值。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "读取配置文件失败")
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &cfg)
	case ".toml":
		_, err = toml.Decode(string(content), &cfg)
	case ".json":
		err = json.Unmarshal(content, &cfg)
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的配置格式: %q", ext))
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析配置失败")
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回以 baseDir 为根、全部使用默认值的配置。
func Default(baseDir string) *Config {
	cfg := &Config{}
	cfg.applyDefaults(baseDir)
	return cfg
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = 30
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Audit.Enabled {
		c.Logging.Audit.Path = resolve(baseDir, c.Logging.Audit.Path, filepath.Join("logs", "audit.log"))
	}

	c.Runtime.DataDir = resolve(baseDir, c.Runtime.DataDir, "data")

	c.EventLog.Path = resolve(c.Runtime.DataDir, c.EventLog.Path, "events.jsonl")
	if c.EventLog.Durability == "" {
		c.EventLog.Durability = "sync"
	}

	if c.Approvals.Driver == "" {
		c.Approvals.Driver = "file"
	}
	c.Approvals.Path = resolve(c.Runtime.DataDir, c.Approvals.Path, "approvals.jsonl")

	if len(c.Policy.BlockedHours) == 0 {
		c.Policy.BlockedHours = []int{policy.DefaultBlockedStart, policy.DefaultBlockedEnd}
	}

	if c.Dispatch.Store.Driver == "" {
		c.Dispatch.Store.Driver = "memory"
	}
	if c.Dispatch.Queue.Driver == "" {
		c.Dispatch.Queue.Driver = "memory"
	}
	if c.Dispatch.Queue.Size <= 0 {
		c.Dispatch.Queue.Size = 1024
	}
	if c.Dispatch.Queue.Redis.Queue == "" {
		c.Dispatch.Queue.Redis.Queue = "jarvis:intents"
	}
	if c.Dispatch.Queue.Redis.BlockWaitSeconds <= 0 {
		c.Dispatch.Queue.Redis.BlockWaitSeconds = 5
	}
	if c.Dispatch.Queue.RabbitMQ.Queue == "" {
		c.Dispatch.Queue.RabbitMQ.Queue = "jarvis.intents"
	}
	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = 1
	}

	c.Agents.MusicDir = resolve(baseDir, c.Agents.MusicDir, "music")
	if c.Agents.Ledger.Name == "" {
		c.Agents.Ledger.Name = "ethereum"
	}

	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
}

// Validate 检查取值范围与后端依赖的必填项。
func (c *Config) Validate() error {
	if _, err := c.EventLog.Mode(); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "event_log 配置无效")
	}
	switch c.Approvals.Driver {
	case "file":
	case "mysql":
		if strings.TrimSpace(c.Approvals.MySQL.DSN) == "" {
			return invalid("approvals.mysql.dsn 不能为空")
		}
	default:
		return invalid(fmt.Sprintf("未知的 approvals.driver: %s", c.Approvals.Driver))
	}

	if len(c.Policy.BlockedHours) != 2 {
		return invalid("policy.blocked_hours 需要两个元素 [start, end]")
	}
	for _, h := range c.Policy.BlockedHours {
		if h < 0 || h > 23 {
			return invalid(fmt.Sprintf("policy.blocked_hours 超出范围: %d", h))
		}
	}
	if v := c.Policy.BatteryThreshold; v != nil && (*v < 0 || *v > 1) {
		return invalid("policy.battery_threshold 需位于 [0, 1]")
	}
	if v := c.Policy.ConfidenceThreshold; v != nil && (*v < 0 || *v > 1) {
		return invalid("policy.confidence_threshold 需位于 [0, 1]")
	}

	switch c.Dispatch.Store.Driver {
	case "memory":
	case "mysql":
		if strings.TrimSpace(c.Dispatch.Store.MySQL.DSN) == "" {
			return invalid("dispatch.store.mysql.dsn 不能为空")
		}
	default:
		return invalid(fmt.Sprintf("未知的 dispatch.store.driver: %s", c.Dispatch.Store.Driver))
	}
	switch c.Dispatch.Queue.Driver {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Dispatch.Queue.Redis.Address) == "" {
			return invalid("dispatch.queue.redis.address 不能为空")
		}
	case "rabbitmq":
		if strings.TrimSpace(c.Dispatch.Queue.RabbitMQ.URL) == "" {
			return invalid("dispatch.queue.rabbitmq.url 不能为空")
		}
	default:
		return invalid(fmt.Sprintf("未知的 dispatch.queue.driver: %s", c.Dispatch.Queue.Driver))
	}
	return nil
}

func invalid(msg string) error {
	return xerrors.New(xerrors.CodeInvalidArgument, msg)
}

func resolve(baseDir, value, fallback string) string {
	if value == "" {
		value = fallback
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(baseDir, value)
}
