// Package config 负责加载和验证 YAML 配置文件。
// 提供看板所需的全部配置项：交易对列表、行情连接、订单簿深度、对外服务和可选的消息分发。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 环境变量覆盖项（.env 中同样生效）
const (
	EnvLogLevel   = "OBD_LOG_LEVEL"
	EnvListenAddr = "OBD_LISTEN_ADDR"
	EnvWSBaseURL  = "OBD_WS_BASE_URL"
	EnvNATSURL    = "OBD_NATS_URL"
	EnvRedisAddr  = "OBD_REDIS_ADDR"
	EnvRedisDB    = "OBD_REDIS_DB"
)

// Config 应用配置根结构
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Pairs 可选交易对（静态列表）
	Pairs []PairConfig `yaml:"pairs"`
	// DefaultPair 启动时订阅的交易对，为空时取 Pairs 第一项
	DefaultPair string `yaml:"default_pair"`
	// WS 行情 WebSocket 配置
	WS WSConfig `yaml:"ws"`
	// Book 订单簿展示参数
	Book BookConfig `yaml:"book"`
	// Metadata 交易对校验配置
	Metadata MetadataConfig `yaml:"metadata"`
	// Server 对外 HTTP/WebSocket 服务
	Server ServerConfig `yaml:"server"`
	// NATS NATS 分发配置
	NATS NATSConfig `yaml:"nats"`
	// Redis Redis 分发配置
	Redis RedisConfig `yaml:"redis"`
	// Output 指标文件输出配置
	Output OutputConfig `yaml:"output"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志与指标命名空间
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
}

// PairConfig 交易对配置
type PairConfig struct {
	// Symbol 交易所代码，如 BTCUSDT
	Symbol string `yaml:"symbol"`
	// DisplayName 展示名称，如 BTC-USD
	DisplayName string `yaml:"display_name"`
}

// WSConfig 行情 WebSocket 配置
type WSConfig struct {
	// BaseURL 行情流基础地址，订阅地址为 BaseURL/<symbol小写><StreamSuffix>
	BaseURL string `yaml:"base_url"`
	// StreamSuffix 流名称后缀
	StreamSuffix string `yaml:"stream_suffix"`
	// PingIntervalMs 心跳间隔（毫秒）
	PingIntervalMs int `yaml:"ping_interval_ms"`
	// ReadTimeoutMs 读取超时（毫秒）
	ReadTimeoutMs int `yaml:"read_timeout_ms"`
	// HandshakeTimeoutMs 握手超时（毫秒）
	HandshakeTimeoutMs int `yaml:"handshake_timeout_ms"`
	// DialAttempts 建立订阅时的最大拨号次数
	DialAttempts int `yaml:"dial_attempts"`
	// BufferSize 消息通道容量
	BufferSize int `yaml:"buffer_size"`
}

// BookConfig 订单簿展示参数
type BookConfig struct {
	// TableDepth 表格深度
	TableDepth int `yaml:"table_depth"`
	// ChartDepth 深度图深度（最大 15）
	ChartDepth int `yaml:"chart_depth"`
	// ChangeMode 变化标记比对方式: index（按行号）, price（按价格）
	ChangeMode string `yaml:"change_mode"`
}

// MetadataConfig 交易对校验配置
type MetadataConfig struct {
	// ExchangeInfoURL 现货 exchangeInfo 地址；为空时跳过校验
	ExchangeInfoURL string `yaml:"exchange_info_url"`
	// TimeoutMs HTTP 请求超时时间（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
}

// ServerConfig 对外服务配置
type ServerConfig struct {
	// ListenAddr 监听地址
	ListenAddr string `yaml:"listen_addr"`
	// ClientBufferSize 每个 WebSocket 客户端的发送缓冲
	ClientBufferSize int `yaml:"client_buffer_size"`
}

// NATSConfig NATS 分发配置
type NATSConfig struct {
	// Enabled 是否启用
	Enabled bool `yaml:"enabled"`
	// URL NATS 地址
	URL string `yaml:"url"`
	// SubjectPrefix 主题前缀，完整主题为 <prefix>.<SYMBOL>.state
	SubjectPrefix string `yaml:"subject_prefix"`
}

// RedisConfig Redis 分发配置
type RedisConfig struct {
	// Enabled 是否启用
	Enabled bool `yaml:"enabled"`
	// Addr Redis 地址
	Addr string `yaml:"addr"`
	// Password 密码
	Password string `yaml:"password"`
	// DB 数据库编号
	DB int `yaml:"db"`
	// ChannelPrefix 频道前缀，完整频道为 <prefix>_<SYMBOL>_state
	ChannelPrefix string `yaml:"channel_prefix"`
}

// OutputConfig 指标文件输出配置
type OutputConfig struct {
	// Dir 输出目录
	Dir string `yaml:"dir"`
	// MetricsEnabled 是否输出 metrics.jsonl
	MetricsEnabled bool `yaml:"metrics_enabled"`
	// MetricsIntervalMs 指标输出间隔（毫秒）
	MetricsIntervalMs int `yaml:"metrics_interval_ms"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size"`
}

// Load 从文件加载配置并验证
// 先加载同目录下可选的 .env，再读取 YAML，最后由环境变量覆盖
// 参数 path: 配置文件路径
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 失败: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse 解析 YAML 内容，应用环境变量覆盖与默认值并验证
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return &cfg, nil
}

// applyEnv 使用环境变量覆盖配置
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.App.LogLevel = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv(EnvWSBaseURL); v != "" {
		c.WS.BaseURL = v
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		c.NATS.URL = v
		c.NATS.Enabled = true
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv(EnvRedisDB); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: 无效的数据库编号 '%s': %w", EnvRedisDB, v, err)
		}
		c.Redis.DB = db
	}
	return nil
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "orderbook-dashboard"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	if len(c.Pairs) == 0 {
		c.Pairs = []PairConfig{
			{Symbol: "BTCUSDT", DisplayName: "BTC-USD"},
			{Symbol: "ETHUSDT", DisplayName: "ETH-USD"},
			{Symbol: "XRPUSDT", DisplayName: "XRP-USD"},
		}
	}
	for i := range c.Pairs {
		c.Pairs[i].Symbol = strings.ToUpper(strings.TrimSpace(c.Pairs[i].Symbol))
		if c.Pairs[i].DisplayName == "" {
			c.Pairs[i].DisplayName = c.Pairs[i].Symbol
		}
	}
	if c.DefaultPair == "" && len(c.Pairs) > 0 {
		c.DefaultPair = c.Pairs[0].Symbol
	}
	c.DefaultPair = strings.ToUpper(strings.TrimSpace(c.DefaultPair))

	if c.WS.BaseURL == "" {
		c.WS.BaseURL = "wss://stream.binance.com:9443/ws"
	}
	if c.WS.StreamSuffix == "" {
		c.WS.StreamSuffix = "@depth20@100ms"
	}
	if c.WS.PingIntervalMs == 0 {
		c.WS.PingIntervalMs = 15000 // 15 秒
	}
	if c.WS.ReadTimeoutMs == 0 {
		c.WS.ReadTimeoutMs = 30000 // 30 秒
	}
	if c.WS.HandshakeTimeoutMs == 0 {
		c.WS.HandshakeTimeoutMs = 10000
	}
	if c.WS.DialAttempts == 0 {
		c.WS.DialAttempts = 3
	}
	if c.WS.BufferSize == 0 {
		c.WS.BufferSize = 1000
	}

	if c.Book.TableDepth == 0 {
		c.Book.TableDepth = 10
	}
	if c.Book.ChartDepth == 0 {
		c.Book.ChartDepth = 15
	}
	if c.Book.ChangeMode == "" {
		c.Book.ChangeMode = "index"
	}

	if c.Metadata.TimeoutMs == 0 {
		c.Metadata.TimeoutMs = 10000
	}

	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.ClientBufferSize == 0 {
		c.Server.ClientBufferSize = 64
	}

	if c.NATS.URL == "" {
		c.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "orderbook"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Redis.ChannelPrefix == "" {
		c.Redis.ChannelPrefix = "orderbook"
	}

	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if c.Output.MetricsIntervalMs == 0 {
		c.Output.MetricsIntervalMs = 10000
	}
	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = 1000
	}
}

// Validate 验证配置合法性
// 返回: 汇总所有问题的描述性错误
func (c *Config) Validate() error {
	var errs []string

	if len(c.Pairs) == 0 {
		errs = append(errs, "pairs: 至少需要配置一个交易对")
	}
	seen := make(map[string]bool, len(c.Pairs))
	for i, p := range c.Pairs {
		if p.Symbol == "" {
			errs = append(errs, fmt.Sprintf("pairs[%d].symbol: 交易对不能为空", i))
			continue
		}
		if seen[p.Symbol] {
			errs = append(errs, fmt.Sprintf("pairs[%d].symbol: 交易对 '%s' 重复", i, p.Symbol))
		}
		seen[p.Symbol] = true
	}
	if c.DefaultPair != "" && !seen[c.DefaultPair] {
		errs = append(errs, fmt.Sprintf("default_pair: '%s' 不在 pairs 中", c.DefaultPair))
	}

	if c.WS.BaseURL == "" {
		errs = append(errs, "ws.base_url: 行情地址不能为空")
	} else if !strings.HasPrefix(c.WS.BaseURL, "ws://") && !strings.HasPrefix(c.WS.BaseURL, "wss://") {
		errs = append(errs, fmt.Sprintf("ws.base_url: 必须以 ws:// 或 wss:// 开头，当前值: %s", c.WS.BaseURL))
	}
	if c.WS.DialAttempts < 0 {
		errs = append(errs, "ws.dial_attempts: 拨号次数不能为负数")
	}
	if c.WS.ReadTimeoutMs < 0 || c.WS.PingIntervalMs < 0 {
		errs = append(errs, "ws: 超时与心跳间隔不能为负数")
	}

	if c.Book.TableDepth < 1 || c.Book.TableDepth > 20 {
		errs = append(errs, fmt.Sprintf("book.table_depth: 必须在 1-20 之间，当前值: %d", c.Book.TableDepth))
	}
	if c.Book.ChartDepth < 1 || c.Book.ChartDepth > 15 {
		errs = append(errs, fmt.Sprintf("book.chart_depth: 必须在 1-15 之间，当前值: %d", c.Book.ChartDepth))
	}
	if c.Book.ChangeMode != "index" && c.Book.ChangeMode != "price" {
		errs = append(errs, fmt.Sprintf("book.change_mode: 无效的比对方式 '%s'，有效值: index, price", c.Book.ChangeMode))
	}

	if c.Server.ListenAddr == "" {
		errs = append(errs, "server.listen_addr: 监听地址不能为空")
	}

	if c.Redis.DB < 0 {
		errs = append(errs, "redis.db: 数据库编号不能为负数")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// StreamURL 返回指定交易对的行情订阅地址
// 参数 symbol: 交易所代码，如 BTCUSDT
func (w *WSConfig) StreamURL(symbol string) string {
	return strings.TrimRight(w.BaseURL, "/") + "/" + strings.ToLower(symbol) + w.StreamSuffix
}
