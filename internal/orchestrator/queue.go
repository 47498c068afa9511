package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"AgentTodo/internal/config"
	xerrors "AgentTodo/internal/errors"
)

// Handler 处理来自消息队列的一条作业消息。
type Handler func(ctx context.Context, message string) error

// Producer 负责向队列投递作业。
type Producer interface {
	Publish(ctx context.Context, message string) error
	Close() error
}

// Consumer 负责从队列中消费作业。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}

// Job 是队列中传递的作业信封，只携带标识，不携带状态。
type Job struct {
	TodoID string `json:"todo_id"`
	Server string `json:"server"`
}

func encodeJob(job Job) (string, error) {
	raw, err := json.Marshal(job)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeJob(message string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(message), &job); err != nil {
		return Job{}, fmt.Errorf("解析作业消息失败: %w", err)
	}
	if strings.TrimSpace(job.TodoID) == "" || strings.TrimSpace(job.Server) == "" {
		return Job{}, fmt.Errorf("作业消息缺少 todo_id 或 server: %s", message)
	}
	return job, nil
}

// NewQueue 根据配置创建队列实现。
func NewQueue(cfg config.QueueConfig) (Queue, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemoryQueue(cfg.Size), nil
	case "redis":
		return NewRedisQueue(cfg.Redis)
	case "rabbitmq":
		return NewRabbitMQQueue(cfg.RabbitMQ)
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "不支持的队列驱动: "+cfg.Driver)
	}
}
