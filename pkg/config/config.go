package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/upmaker/jitgo/internal/domain"
)

// GatewayConfig 交易网关配置
type GatewayConfig struct {
	BaseURL   string `yaml:"base_url" json:"base_url"`     // REST 网关地址
	WSURL     string `yaml:"ws_url" json:"ws_url"`         // WebSocket 行情/事件地址
	APIKey    string `yaml:"api_key" json:"api_key"`       // 网关鉴权（可选）
	TimeoutMs int    `yaml:"timeout_ms" json:"timeout_ms"` // 单请求超时（毫秒），默认 3000
	Retries   int    `yaml:"retries" json:"retries"`       // REST 重试次数，默认 2
}

// EngineConfig 撮合引擎配置
type EngineConfig struct {
	Strategy      string   `yaml:"strategy" json:"strategy"`             // shotgun 或 sniper，默认 shotgun
	RetryDelayMs  int      `yaml:"retry_delay_ms" json:"retry_delay_ms"` // 霰弹尝试间隔（毫秒），默认 1000
	BurstAttempts int      `yaml:"burst_attempts" json:"burst_attempts"` // 狙击连发次数，默认 10
	BurstDelayMs  int      `yaml:"burst_delay_ms" json:"burst_delay_ms"` // 狙击连发间隔（毫秒），默认 200
	MinFillSize   string   `yaml:"min_fill_size" json:"min_fill_size"`   // 经济可行的最小成交量（基础资产小数串）
	ExcludeTakers []string `yaml:"exclude_takers" json:"exclude_takers"` // 排除的吃单授权账户（通常是自己）
}

// MarketConfig 单个市场的做市参数。
// 价格与数量用小数字符串书写，加载时换算成定点数。
type MarketConfig struct {
	Kind        string `yaml:"kind" json:"kind"`                 // perp 或 spot
	Index       uint16 `yaml:"index" json:"index"`               // 市场序号
	MaxPosition string `yaml:"max_position" json:"max_position"` // 净仓位上界（基础资产）
	MinPosition string `yaml:"min_position" json:"min_position"` // 净仓位下界（基础资产，通常为负）
	Bid         string `yaml:"bid" json:"bid"`                   // 最差买价（或预言机偏移）
	Ask         string `yaml:"ask" json:"ask"`                   // 最差卖价（或预言机偏移）
	PriceKind   string `yaml:"price_kind" json:"price_kind"`     // limit 或 oracle，默认 limit
	PostOnly    string `yaml:"post_only" json:"post_only"`       // none/must/try/slide，默认 none
}

// ArbConfig 套利扫描配置
type ArbConfig struct {
	Enabled    bool     `yaml:"enabled" json:"enabled"`
	Markets    []uint16 `yaml:"markets" json:"markets"`         // 扫描的永续市场序号
	IntervalMs int      `yaml:"interval_ms" json:"interval_ms"` // 扫描间隔（毫秒），默认 1000
}

// RiskConfig 熔断配置
type RiskConfig struct {
	MaxConsecutiveAborts int64  `yaml:"max_consecutive_aborts" json:"max_consecutive_aborts"` // 连续异常终止上限，默认 5
	DailyLossLimit       string `yaml:"daily_loss_limit" json:"daily_loss_limit"`             // 当日最大亏损（报价资产小数串），空为关闭
}

// Config 应用配置
type Config struct {
	Gateway GatewayConfig  `yaml:"gateway" json:"gateway"`
	Engine  EngineConfig   `yaml:"engine" json:"engine"`
	Markets []MarketConfig `yaml:"markets" json:"markets"`
	Arb     ArbConfig      `yaml:"arb" json:"arb"`
	Risk    RiskConfig     `yaml:"risk" json:"risk"`

	ControlListen string `yaml:"control_listen" json:"control_listen"` // 控制面监听地址，默认 127.0.0.1:8787
	JournalPath   string `yaml:"journal_path" json:"journal_path"`     // 成交流水 sqlite 路径，默认 data/journal.db
	EnvelopePath  string `yaml:"envelope_path" json:"envelope_path"`   // 包络持久化目录，默认 data/envelopes

	LogLevel      string `yaml:"log_level" json:"log_level"`
	LogFile       string `yaml:"log_file" json:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb" json:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups" json:"log_max_backups"`
}

// Load 从文件加载配置（支持 YAML 和 JSON），缺省字段用环境变量/默认值补齐
func Load(filePath string) (*Config, error) {
	var cfg Config
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
			}
		case ".json":
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
			}
		default:
			return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return &cfg, nil
}

// applyDefaults 环境变量兜底 + 默认值（优先级：配置文件 > 环境变量 > 默认值）
func (c *Config) applyDefaults() {
	if c.Gateway.BaseURL == "" {
		c.Gateway.BaseURL = getEnv("GATEWAY_BASE_URL", "")
	}
	if c.Gateway.WSURL == "" {
		c.Gateway.WSURL = getEnv("GATEWAY_WS_URL", "")
	}
	if c.Gateway.APIKey == "" {
		c.Gateway.APIKey = getEnv("GATEWAY_API_KEY", "")
	}
	if c.Gateway.TimeoutMs <= 0 {
		c.Gateway.TimeoutMs = parseIntEnv("GATEWAY_TIMEOUT_MS", 3000)
	}
	if c.Gateway.Retries <= 0 {
		c.Gateway.Retries = parseIntEnv("GATEWAY_RETRIES", 2)
	}

	if c.Engine.Strategy == "" {
		c.Engine.Strategy = getEnv("ENGINE_STRATEGY", "shotgun")
	}
	if c.Engine.RetryDelayMs <= 0 {
		c.Engine.RetryDelayMs = parseIntEnv("ENGINE_RETRY_DELAY_MS", 1000)
	}
	if c.Engine.BurstAttempts <= 0 {
		c.Engine.BurstAttempts = parseIntEnv("ENGINE_BURST_ATTEMPTS", 10)
	}
	if c.Engine.BurstDelayMs <= 0 {
		c.Engine.BurstDelayMs = parseIntEnv("ENGINE_BURST_DELAY_MS", 200)
	}

	if c.Arb.IntervalMs <= 0 {
		c.Arb.IntervalMs = parseIntEnv("ARB_INTERVAL_MS", 1000)
	}
	if c.Risk.MaxConsecutiveAborts == 0 {
		c.Risk.MaxConsecutiveAborts = int64(parseIntEnv("RISK_MAX_CONSECUTIVE_ABORTS", 5))
	}

	if c.ControlListen == "" {
		c.ControlListen = getEnv("CONTROL_LISTEN", "127.0.0.1:8787")
	}
	if c.JournalPath == "" {
		c.JournalPath = getEnv("JOURNAL_PATH", "data/journal.db")
	}
	if c.EnvelopePath == "" {
		c.EnvelopePath = getEnv("ENVELOPE_PATH", "data/envelopes")
	}

	if c.LogLevel == "" {
		c.LogLevel = getEnv("LOG_LEVEL", "info")
	}
	if c.LogFile == "" {
		c.LogFile = getEnv("LOG_FILE", "logs/jitter.log")
	}
	if c.LogMaxSizeMB <= 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups <= 0 {
		c.LogMaxBackups = 5
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("GATEWAY_BASE_URL 未配置")
	}
	if c.Gateway.WSURL == "" {
		return fmt.Errorf("GATEWAY_WS_URL 未配置")
	}
	if c.Engine.Strategy != "shotgun" && c.Engine.Strategy != "sniper" {
		return fmt.Errorf("未知的策略: %s (支持 shotgun, sniper)", c.Engine.Strategy)
	}
	for i, m := range c.Markets {
		if _, ok := domain.ParseMarketKind(m.Kind); !ok {
			return fmt.Errorf("markets[%d]: 未知的市场类型 %q", i, m.Kind)
		}
		if _, ok := domain.ParsePriceKind(m.PriceKind); !ok {
			return fmt.Errorf("markets[%d]: 未知的报价方式 %q", i, m.PriceKind)
		}
		if _, ok := domain.ParsePostOnlyMode(m.PostOnly); !ok {
			return fmt.Errorf("markets[%d]: 未知的 post_only 模式 %q", i, m.PostOnly)
		}
		if _, _, err := m.Envelope(); err != nil {
			return fmt.Errorf("markets[%d]: %w", i, err)
		}
	}
	return nil
}

// Envelope 把单个市场配置换算成定点数包络
func (m MarketConfig) Envelope() (domain.MarketID, domain.Envelope, error) {
	kind, _ := domain.ParseMarketKind(m.Kind)
	market := domain.MarketID{Kind: kind, Index: m.Index}

	maxPos, err := ParseBase(m.MaxPosition)
	if err != nil {
		return market, domain.Envelope{}, fmt.Errorf("max_position: %w", err)
	}
	minPos, err := ParseBase(m.MinPosition)
	if err != nil {
		return market, domain.Envelope{}, fmt.Errorf("min_position: %w", err)
	}
	if minPos > maxPos {
		return market, domain.Envelope{}, fmt.Errorf("min_position %s > max_position %s", m.MinPosition, m.MaxPosition)
	}
	bid, err := ParsePrice(m.Bid)
	if err != nil {
		return market, domain.Envelope{}, fmt.Errorf("bid: %w", err)
	}
	ask, err := ParsePrice(m.Ask)
	if err != nil {
		return market, domain.Envelope{}, fmt.Errorf("ask: %w", err)
	}

	priceKind, _ := domain.ParsePriceKind(m.PriceKind)
	postOnly, _ := domain.ParsePostOnlyMode(m.PostOnly)
	return market, domain.Envelope{
		MaxPosition: maxPos,
		MinPosition: minPos,
		Bid:         bid,
		Ask:         ask,
		PriceKind:   priceKind,
		PostOnly:    postOnly,
	}, nil
}

// ParseBase 小数字符串换算成 BasePrecision 定点数。空串为 0。
func ParseBase(s string) (int64, error) {
	return parseFixed(s, domain.BasePrecision)
}

// ParsePrice 小数字符串换算成 PricePrecision 定点数。空串为 0。
func ParsePrice(s string) (int64, error) {
	return parseFixed(s, domain.PricePrecision)
}

// ParseQuote 小数字符串换算成 QuotePrecision 定点数。空串为 0。
func ParseQuote(s string) (int64, error) {
	return parseFixed(s, int64(domain.QuotePrecision))
}

// parseFixed 十进制精确换算，拒绝超出精度的小数位
func parseFixed(s string, precision int64) (int64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("非法小数 %q: %w", s, err)
	}
	scaled := d.Mul(decimal.NewFromInt(precision))
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("%q 超出精度 1/%d", s, precision)
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("%q 超出 int64 范围", s)
	}
	return scaled.IntPart(), nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
