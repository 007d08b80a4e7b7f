package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/implantai/backend/internal/model/catalog"
)

// DefaultTemperature 临床场景偏向确定性输出。
const DefaultTemperature = 0.4

// ErrMissingCredential 表示未配置访问模型服务所需的凭证。
var ErrMissingCredential = errors.New("model service credential is not configured")

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Log       LogConfig
	Telemetry TelemetryConfig
	Audit     AuditConfig
}

// Load 从环境变量加载配置；若设置了 IMPLANTAI_CONFIG，则先读取该 TOML 文件作为默认值。
func Load() (*Config, error) {
	return LoadWithFile(strings.TrimSpace(os.Getenv("IMPLANTAI_CONFIG")))
}

// LoadWithFile 以 path 指向的 TOML 文件为默认值，再用环境变量覆盖。path 为空时只读环境变量。
func LoadWithFile(path string) (*Config, error) {
	var file fileConfig
	if path != "" {
		loaded, err := readFile(path)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	server, err := loadServerConfig(file.Server)
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig(file.AI)
	if err != nil {
		return nil, err
	}

	logCfg := loadLogConfig(file.Log)

	telemetry, err := loadTelemetryConfig(file.Telemetry)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AI:        ai,
		Log:       logCfg,
		Telemetry: telemetry,
		Audit:     AuditConfig{DBPath: getEnvOrDefault("AUDIT_DB_PATH", file.Audit.DBPath)},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(file fileServer) (ServerConfig, error) {
	port := getEnvOrDefault("PORT", file.Port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	BaseURL     string
	Region      string
	ProModel    string
	FlashModel  string
	LiteModel   string
	Temperature float32
	MaxTokens   *int
}

// HasCredential 表示是否提供了必需的密钥。
func (c AIConfig) HasCredential() bool {
	return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
}

// ModelName 返回具体档位对应的 Ark 模型/接入点名称。
func (c AIConfig) ModelName(m catalog.Model) (string, error) {
	var name string
	switch m {
	case catalog.Pro:
		name = c.ProModel
	case catalog.Flash:
		name = c.FlashModel
	case catalog.Lite:
		name = c.LiteModel
	default:
		return "", fmt.Errorf("model %q cannot be bound directly: %w", m, catalog.ErrUnknownModel)
	}
	if name == "" {
		return "", fmt.Errorf("no Ark model configured for tier %q", m)
	}
	return name, nil
}

// NewChatModel 为指定档位创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context, m catalog.Model, temperature float32) (model.BaseChatModel, error) {
	if !c.HasCredential() {
		return nil, fmt.Errorf("%w: set ARK_API_KEY or ARK_ACCESS_KEY + ARK_SECRET_KEY", ErrMissingCredential)
	}

	name, err := c.ModelName(m)
	if err != nil {
		return nil, err
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	temp := temperature
	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       name,
		MaxTokens:   maxTokens,
		Temperature: &temp,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig(file fileAI) (AIConfig, error) {
	temperature := float32(DefaultTemperature)
	if file.Temperature != nil {
		temperature = float32(*file.Temperature)
	}
	if override, err := parseOptionalFloatEnv("ARK_TEMPERATURE"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		temperature = float32(*override)
	}
	if temperature < 0 || temperature > 2 {
		return AIConfig{}, fmt.Errorf("invalid temperature %.2f: must be within [0, 2]", temperature)
	}

	maxTokens := file.MaxTokens
	if override, err := parseOptionalIntEnv("ARK_MAX_TOKENS"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		maxTokens = override
	}

	return AIConfig{
		APIKey:      getEnvOrDefault("ARK_API_KEY", file.APIKey),
		AccessKey:   getEnvOrDefault("ARK_ACCESS_KEY", file.AccessKey),
		SecretKey:   getEnvOrDefault("ARK_SECRET_KEY", file.SecretKey),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", firstNonEmpty(file.BaseURL, "https://ark.cn-beijing.volces.com/api/v3")),
		Region:      getEnvOrDefault("ARK_REGION", firstNonEmpty(file.Region, "cn-beijing")),
		ProModel:    getEnvOrDefault("ARK_MODEL_PRO", firstNonEmpty(file.Models.Pro, "doubao-seed-1-6-250615")),
		FlashModel:  getEnvOrDefault("ARK_MODEL_FLASH", firstNonEmpty(file.Models.Flash, "doubao-seed-1-6-flash-250715")),
		LiteModel:   getEnvOrDefault("ARK_MODEL_LITE", firstNonEmpty(file.Models.Lite, "doubao-seed-1-6-lite-251015")),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level string
	File  string
}

func loadLogConfig(file fileLog) LogConfig {
	return LogConfig{
		Level: getEnvOrDefault("LOG_LEVEL", firstNonEmpty(file.Level, "info")),
		File:  getEnvOrDefault("LOG_FILE", file.File),
	}
}

// TelemetryConfig 控制 OpenTelemetry 导出。
type TelemetryConfig struct {
	Enabled     bool
	ServiceName string
}

func loadTelemetryConfig(file fileTelemetry) (TelemetryConfig, error) {
	enabled, err := parseBoolEnv("TELEMETRY_ENABLED", file.Enabled)
	if err != nil {
		return TelemetryConfig{}, err
	}
	return TelemetryConfig{
		Enabled:     enabled,
		ServiceName: getEnvOrDefault("TELEMETRY_SERVICE_NAME", firstNonEmpty(file.ServiceName, "implantai")),
	}, nil
}

// AuditConfig 描述可选的 SQLite 审计日志。
type AuditConfig struct {
	DBPath string
}

// Enabled 表示是否配置了审计数据库。
func (c AuditConfig) Enabled() bool {
	return c.DBPath != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
