// Package config 负责加载 agentd 的 YAML/JSON 配置：服务监听与 token、
// mcpServers 委派目标、队列驱动、规划策略、日志与告警。
// 配置中的 ${VAR} 按环境变量展开，同目录下的 .env 会先被载入。
package config
