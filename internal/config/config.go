// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// AppConfig 运行期配置，持久化在 data/config.json
type AppConfig struct {
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	LogDir    string `json:"log_dir"`
	LogLevel  string `json:"log_level"`
	DebugMode bool   `json:"debug_mode"`

	// 生成后端
	LLMProvider       string            `json:"llm_provider"`
	LLMConfig         map[string]string `json:"llm_config"`
	GenerationTimeout time.Duration     `json:"generation_timeout"`

	// 偏好存储
	StoreBackend string `json:"store_backend"`
	MongoURI     string `json:"mongo_uri,omitempty"`
	MongoDB      string `json:"mongo_db,omitempty"`
	RedisAddr    string `json:"redis_addr,omitempty"`

	PolicyFile string `json:"policy_file,omitempty"`
}

// Config 从环境变量读取的基础配置
type Config struct {
	Port              string
	GeminiAPIKey      string
	OpenAIAPIKey      string
	LLMProvider       string
	TextModel         string
	ImageModel        string
	ImagenModel       string
	VideoModel        string
	GenerationTimeout time.Duration
	DataDir           string
	LogDir            string
	LogLevel          string
	DebugMode         bool
	StoreBackend      string
	MongoURI          string
	MongoDB           string
	RedisAddr         string
	PolicyFile        string
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// .env 可选
	godotenv.Load()

	config := &Config{
		Port:              getEnv("PORT", "8080"),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", getEnv("API_KEY", "")),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		LLMProvider:       getEnv("LLM_PROVIDER", "google"),
		TextModel:         getEnv("TEXT_MODEL", "gemini-2.5-flash"),
		ImageModel:        getEnv("IMAGE_MODEL", "gemini-2.5-flash-image-preview"),
		ImagenModel:       getEnv("IMAGEN_MODEL", "imagen-4.0-generate-001"),
		VideoModel:        getEnv("VIDEO_MODEL", "veo-2.0-generate-001"),
		GenerationTimeout: getEnvDuration("GENERATION_TIMEOUT", 120*time.Second),
		DataDir:           getEnvPath("DATA_DIR", "data"),
		LogDir:            getEnvPath("LOG_DIR", "logs"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DebugMode:         getEnvBool("DEBUG_MODE", false),
		StoreBackend:      getEnv("STORE_BACKEND", "file"),
		MongoURI:          getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:           getEnv("MONGO_DB", "direktiva"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		PolicyFile:        getEnv("POLICY_FILE", "policy.yaml"),
	}

	if config.GeminiAPIKey == "" {
		// 只记录警告，不返回错误
		log.Println("警告: 未设置 GEMINI_API_KEY，生成功能将不可用")
	}

	return config, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取路径并确保目录存在
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvDuration 支持 "90s" 形式或纯秒数
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("警告: %s 无法解析 (%q)，使用默认值 %s", key, value, defaultValue)
	return defaultValue
}

func (c *Config) llmConfig() map[string]string {
	return map[string]string{
		"api_key":        c.GeminiAPIKey,
		"openai_api_key": c.OpenAIAPIKey,
		"default_model":  c.TextModel,
		"image_model":    c.ImageModel,
		"imagen_model":   c.ImagenModel,
		"video_model":    c.VideoModel,
	}
}

// InitConfig 初始化配置管理器
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = fromBase(baseConfig)

	// 文件中的 LLM 设置优先，目录和端口始终以环境为准
	if data, err := os.ReadFile(configFile); err == nil {
		var saved AppConfig
		if json.Unmarshal(data, &saved) == nil {
			saved.Port = baseConfig.Port
			saved.DataDir = baseConfig.DataDir
			saved.LogDir = baseConfig.LogDir
			saved.DebugMode = baseConfig.DebugMode
			if saved.LLMConfig == nil {
				saved.LLMConfig = baseConfig.llmConfig()
			}
			for k, v := range baseConfig.llmConfig() {
				if saved.LLMConfig[k] == "" {
					saved.LLMConfig[k] = v
				}
			}
			if saved.GenerationTimeout <= 0 {
				saved.GenerationTimeout = baseConfig.GenerationTimeout
			}
			if saved.StoreBackend == "" {
				saved.StoreBackend = baseConfig.StoreBackend
			}
			currentConfig = &saved
		}
	}

	return saveLocked()
}

func fromBase(base *Config) *AppConfig {
	return &AppConfig{
		Port:              base.Port,
		DataDir:           base.DataDir,
		LogDir:            base.LogDir,
		LogLevel:          base.LogLevel,
		DebugMode:         base.DebugMode,
		LLMProvider:       base.LLMProvider,
		LLMConfig:         base.llmConfig(),
		GenerationTimeout: base.GenerationTimeout,
		StoreBackend:      base.StoreBackend,
		MongoURI:          base.MongoURI,
		MongoDB:           base.MongoDB,
		RedisAddr:         base.RedisAddr,
		PolicyFile:        base.PolicyFile,
	}
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		baseConfig, _ := Load()
		return fromBase(baseConfig)
	}

	configCopy := *currentConfig
	configCopy.LLMConfig = make(map[string]string, len(currentConfig.LLMConfig))
	for k, v := range currentConfig.LLMConfig {
		configCopy.LLMConfig[k] = v
	}
	return &configCopy
}

// UpdateLLMConfig 更新 LLM 配置并持久化；传入的键覆盖旧值，未传入的键保留
func UpdateLLMConfig(provider string, config map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.LLMProvider = provider
	if currentConfig.LLMConfig == nil {
		currentConfig.LLMConfig = make(map[string]string, len(config))
	}
	for k, v := range config {
		currentConfig.LLMConfig[k] = v
	}

	return saveLocked()
}

// SaveConfig 保存当前配置到文件
func SaveConfig() error {
	configMutex.Lock()
	defer configMutex.Unlock()
	return saveLocked()
}

func saveLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	// API 密钥不落盘
	persisted := *currentConfig
	persisted.LLMConfig = make(map[string]string, len(currentConfig.LLMConfig))
	for k, v := range currentConfig.LLMConfig {
		if k == "api_key" || k == "openai_api_key" {
			continue
		}
		persisted.LLMConfig[k] = v
	}

	data, err := json.MarshalIndent(persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(configFile, data, 0644)
}
