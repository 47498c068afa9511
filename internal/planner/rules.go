package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"AgentTodo/internal/todo"
)

// Rule 描述一组关键字与其触发的待办模板。
type Rule struct {
	Name     string     `yaml:"name"`
	Keywords []string   `yaml:"keywords"`
	Todos    []Template `yaml:"todos"`
}

// RuleStrategy 通过加载 YAML 规则文件提供可配置的拆解能力。
// 规则按文件顺序匹配，每条命中的规则都会贡献自己的模板。
type RuleStrategy struct {
	rules []Rule
}

// NewRuleStrategy 创建规则策略，并归一化关键字与优先级。
func NewRuleStrategy(rules []Rule) (*RuleStrategy, error) {
	normalized := make([]Rule, 0, len(rules))
	for idx, rule := range rules {
		keywords := make([]string, 0, len(rule.Keywords))
		for _, keyword := range rule.Keywords {
			keyword = strings.ToLower(strings.TrimSpace(keyword))
			if keyword != "" {
				keywords = append(keywords, keyword)
			}
		}
		if len(keywords) == 0 {
			return nil, fmt.Errorf("规则 %d (%s) 没有关键字", idx, rule.Name)
		}
		todos := cloneTemplates(rule.Todos)
		for i := range todos {
			if strings.TrimSpace(todos[i].Title) == "" {
				return nil, fmt.Errorf("规则 %d (%s) 的第 %d 个待办缺少标题", idx, rule.Name, i)
			}
			if todos[i].Priority == "" {
				todos[i].Priority = todo.PriorityMedium
			}
			priority, err := todo.ParsePriority(string(todos[i].Priority))
			if err != nil {
				return nil, fmt.Errorf("规则 %d (%s): %w", idx, rule.Name, err)
			}
			todos[i].Priority = priority
			if todos[i].EstimatedDuration < 0 {
				return nil, fmt.Errorf("规则 %d (%s) 的预计耗时不能为负数", idx, rule.Name)
			}
		}
		normalized = append(normalized, Rule{Name: rule.Name, Keywords: keywords, Todos: todos})
	}
	return &RuleStrategy{rules: normalized}, nil
}

// LoadRuleStrategy 从 YAML 文件加载规则。
func LoadRuleStrategy(path string) (*RuleStrategy, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("规则文件路径不能为空")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析规则文件路径失败: %w", err)
	}
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取规则文件失败: %w", err)
	}
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("解析规则文件失败: %w", err)
	}
	return NewRuleStrategy(doc.Rules)
}

// Name 实现 Strategy 接口。
func (s *RuleStrategy) Name() string { return "rules" }

// Templates 实现 Strategy 接口。
func (s *RuleStrategy) Templates(goal string) []Template {
	normalized := strings.ToLower(goal)
	result := make([]Template, 0)
	if s == nil {
		return result
	}
	for _, rule := range s.rules {
		if containsAny(normalized, rule.Keywords) {
			result = append(result, cloneTemplates(rule.Todos)...)
		}
	}
	return result
}

var _ Strategy = (*RuleStrategy)(nil)
