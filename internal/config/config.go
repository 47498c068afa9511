package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"AgentTodo/pkg/logger"
)

// Config 描述了 agentd 启动时需要加载的全部配置。
type Config struct {
	Server     ServerConfig         `yaml:"server"`
	Logging    logger.Config        `yaml:"logging"`
	Planner    PlannerConfig        `yaml:"planner"`
	Delegation DelegationConfig     `yaml:"delegation"`
	Queue      QueueConfig          `yaml:"queue"`
	Alerting   AlertingConfig       `yaml:"alerting"`
	MCPServers map[string]MCPServer `yaml:"mcpServers" validate:"dive"`
}

// ServerConfig 控制 API 服务的监听地址与访问控制。
type ServerConfig struct {
	Address string     `yaml:"address"`
	Auth    AuthConfig `yaml:"auth"`
}

// AuthConfig 列出允许访问 API 的静态 token，为空时不做认证。
type AuthConfig struct {
	Tokens []APIToken `yaml:"tokens" validate:"dive"`
}

// APIToken 是一个具名 token 及其权限。
type APIToken struct {
	Name        string   `yaml:"name" validate:"required"`
	Token       string   `yaml:"token" validate:"required"`
	Permissions []string `yaml:"permissions"`
}

// PlannerConfig 选择任务拆解策略。
type PlannerConfig struct {
	Strategy  string `yaml:"strategy" validate:"omitempty,oneof=keyword rules"`
	RulesFile string `yaml:"rules_file" validate:"required_if=Strategy rules"`
}

// DelegationConfig 为所有外部服务提供默认的调用限制。
type DelegationConfig struct {
	Timeout        Duration `yaml:"timeout"`
	MaxOutputBytes int64    `yaml:"max_output_bytes" validate:"gte=0"`
}

// QueueConfig 描述待办执行队列。
type QueueConfig struct {
	Driver   string         `yaml:"driver" validate:"omitempty,oneof=memory redis rabbitmq"`
	Workers  int            `yaml:"workers" validate:"gte=0"`
	Size     int            `yaml:"size" validate:"gte=0"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列的连接参数。
type RedisConfig struct {
	Address   string   `yaml:"address"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	Queue     string   `yaml:"queue"`
	BlockWait Duration `yaml:"block_wait"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Queue      string `yaml:"queue"`
	Prefetch   int    `yaml:"prefetch"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// AlertingConfig 配置委派失败时的告警渠道。
type AlertingConfig struct {
	Disabled bool          `yaml:"disabled"`
	Webhook  WebhookConfig `yaml:"webhook"`
}

// WebhookConfig 描述告警 webhook。
type WebhookConfig struct {
	URL     string            `yaml:"url" validate:"omitempty,http_url"`
	Headers map[string]string `yaml:"headers"`
}

// MCPServer 是 mcpServers 中的一项：要么是本地命令，要么是 HTTP 端点。
type MCPServer struct {
	Command string            `yaml:"command" validate:"required_without=URL,excluded_with=URL"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	Dir     string            `yaml:"dir"`
	URL     string            `yaml:"url" validate:"omitempty,http_url"`
	Headers map[string]string `yaml:"headers"`
	Timeout Duration          `yaml:"timeout"`
}

// Duration 允许在 YAML 中使用 "30s" 这样的写法。
type Duration time.Duration

// UnmarshalYAML 解析 time.ParseDuration 格式或整数秒。
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*d = 0
		return nil
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}
	var seconds int64
	if err := node.Decode(&seconds); err != nil {
		return fmt.Errorf("无法解析时长 %q", raw)
	}
	*d = Duration(time.Duration(seconds) * time.Second)
	return nil
}

// Std 返回标准库时长。
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load 解析指定路径的 YAML（或 JSON）配置文件。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("配置文件路径为空")
	}

	// .env 不存在时忽略。
	if err := godotenv.Load(filepath.Join(filepath.Dir(path), ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 失败: %w", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg, err := Parse(expandEnv(content))
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults(filepath.Dir(path))
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv 只展开 ${VAR} 形式的引用，裸 $name 原样保留（例如 sh -c 参数中的 $1）。
func expandEnv(content []byte) []byte {
	return envRef.ReplaceAllFunc(content, func(ref []byte) []byte {
		return []byte(os.Getenv(string(envRef.FindSubmatch(ref)[1])))
	})
}

// Parse 解码并校验配置内容，不填充与文件路径相关的默认值。
func Parse(content []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置内部一致性。
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("配置校验失败: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("配置校验失败: %w", err)
	}
	for name := range c.MCPServers {
		if strings.TrimSpace(name) == "" {
			return errors.New("配置校验失败: mcpServers 中存在空名称")
		}
	}
	return nil
}

// Default 返回未加载任何文件时使用的默认配置。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults("")
	return cfg
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Planner.Strategy == "" {
		c.Planner.Strategy = "keyword"
	}
	c.Planner.RulesFile = resolvePath(baseDir, c.Planner.RulesFile)

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 1
	}
	if c.Queue.Size <= 0 {
		c.Queue.Size = 1024
	}
	if c.Queue.Redis.Queue == "" {
		c.Queue.Redis.Queue = "agenttodo:todos"
	}
	if c.Queue.RabbitMQ.Queue == "" {
		c.Queue.RabbitMQ.Queue = "agenttodo.todos"
	}

	for name, server := range c.MCPServers {
		server.Dir = resolvePath(baseDir, server.Dir)
		c.MCPServers[name] = server
	}
	c.Logging.Audit.Path = resolvePath(baseDir, c.Logging.Audit.Path)
}

func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
