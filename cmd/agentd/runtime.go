package main

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"AgentTodo/internal/config"
	"AgentTodo/internal/delegate"
	"AgentTodo/internal/observability/alerting"
	"AgentTodo/internal/observability/metrics"
	"AgentTodo/internal/orchestrator"
	"AgentTodo/internal/planner"
	"AgentTodo/internal/todo"
	"AgentTodo/pkg/logger"
)

var errMissingConfig = errors.New("需要通过 --config 或 $" + configEnv + " 指定配置文件")

// runtime 聚合了由配置装配出的全部组件。
type runtime struct {
	cfg       *config.Config
	store     *todo.MemoryStore
	planner   *planner.Planner
	registry  *delegate.Registry
	delegator *delegate.Delegator
	queue     orchestrator.Queue
	service   *orchestrator.Service
	processor *orchestrator.Processor
	metrics   *metrics.Metrics
}

func newRuntime(cfg *config.Config) (*runtime, error) {
	strategy, err := buildStrategy(cfg.Planner)
	if err != nil {
		return nil, err
	}
	registry, err := delegate.NewRegistry(cfg.MCPServers)
	if err != nil {
		return nil, err
	}
	queue, err := orchestrator.NewQueue(cfg.Queue)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	store := todo.NewMemoryStore()
	p := planner.New(store, planner.WithStrategy(strategy))
	d := delegate.New(registry,
		delegate.WithTimeout(cfg.Delegation.Timeout.Std()),
		delegate.WithMaxOutputBytes(cfg.Delegation.MaxOutputBytes),
		delegate.WithObserver(m),
	)
	svc := orchestrator.NewService(p, store, queue,
		orchestrator.WithServerResolver(registry),
		orchestrator.WithRecorder(m),
	)
	processor := orchestrator.NewProcessor(d, store, queue,
		orchestrator.WithWorkerCount(cfg.Queue.Workers),
		orchestrator.WithAlertDispatcher(buildAlerts(cfg.Alerting)),
		orchestrator.WithProcessorRecorder(m),
	)

	logger.L().Info("组件装配完成",
		slog.String("strategy", strategy.Name()),
		slog.String("queue", cfg.Queue.Driver),
		slog.Any("servers", registry.Names()),
	)
	return &runtime{
		cfg:       cfg,
		store:     store,
		planner:   p,
		registry:  registry,
		delegator: d,
		queue:     queue,
		service:   svc,
		processor: processor,
		metrics:   m,
	}, nil
}

func (r *runtime) Close() error {
	return r.service.Close()
}

func buildStrategy(cfg config.PlannerConfig) (planner.Strategy, error) {
	strategies := planner.NewRegistry()
	if cfg.Strategy == "rules" {
		rules, err := planner.LoadRuleStrategy(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		if err := strategies.Register(rules); err != nil {
			return nil, err
		}
	}
	name := cfg.Strategy
	if name == "" {
		name = "keyword"
	}
	return strategies.Get(name)
}

func buildAlerts(cfg config.AlertingConfig) alerting.Dispatcher {
	if cfg.Disabled {
		return nil
	}
	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if cfg.Webhook.URL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{
			URL:     cfg.Webhook.URL,
			Headers: cfg.Webhook.Headers,
			Client:  &http.Client{Timeout: 5 * time.Second},
		})
	}
	return alerting.NewFanout(notifiers...)
}
