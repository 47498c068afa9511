package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"AgentTodo/internal/config"
	"AgentTodo/pkg/client"
	"AgentTodo/pkg/logger"
)

// configEnv 在未指定 --config 时提供配置文件路径。
const configEnv = "AGENTTODO_CONFIG"

// tokenEnv 提供访问远程 agentd 的 bearer token。
const tokenEnv = "AGENTTODO_TOKEN"

type rootOptions struct {
	configPath string
	remote     string
	token      string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "agentd",
		Short:         "Plan agent goals into todos and delegate them to external servers",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv(configEnv),
		"config file (YAML or JSON), defaults to $"+configEnv)
	cmd.PersistentFlags().StringVar(&opts.remote, "remote", "", "agentd base URL; run the command against a remote server")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv(tokenEnv), "bearer token for --remote, defaults to $"+tokenEnv)
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newServeCmd(opts),
		newPlanCmd(opts),
		newDelegateCmd(opts),
		newTodosCmd(opts),
	)
	return cmd
}

// loadConfig 读取配置；未提供路径时使用内置默认值，便于本地一次性命令。
func (o *rootOptions) loadConfig(required bool) (*config.Config, error) {
	if o.configPath == "" {
		if required {
			return nil, errMissingConfig
		}
		return config.Default(), nil
	}
	return config.Load(o.configPath)
}

// initLogging 初始化日志；一次性命令默认写 stderr，保持 stdout 只输出结果。
func (o *rootOptions) initLogging(cfg *config.Config, oneShot bool) error {
	logCfg := cfg.Logging
	if oneShot && len(logCfg.Outputs) == 0 {
		logCfg.Outputs = []string{"stderr"}
	}
	if o.verbose {
		logCfg.Level = "debug"
	} else if oneShot && logCfg.Level == "" {
		logCfg.Level = "warn"
	}
	return logger.Init(logCfg)
}

// remoteClient 构建指向 --remote 的 API 客户端。
func (o *rootOptions) remoteClient() (*client.Client, error) {
	c, err := client.New(o.remote, nil)
	if err != nil {
		return nil, err
	}
	c.SetAccessToken(o.token)
	return c, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
