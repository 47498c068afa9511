package planner

import (
	"strings"

	"AgentTodo/internal/todo"
)

// Template 描述一条待办模板，由策略生成，Planner 负责实例化。
type Template struct {
	Title             string        `yaml:"title" json:"title"`
	Description       string        `yaml:"description" json:"description"`
	Priority          todo.Priority `yaml:"priority" json:"priority"`
	EstimatedDuration int           `yaml:"estimated_duration" json:"estimated_duration"`
	Tags              []string      `yaml:"tags" json:"tags"`
}

// Strategy 将目标拆解为有序的待办模板。
// 同一个目标必须总是得到同样的模板序列；不匹配时返回空切片而不是错误。
type Strategy interface {
	Name() string
	Templates(goal string) []Template
}

// KeywordStrategy 是默认策略：按关键字触发固定模板。
type KeywordStrategy struct{}

var (
	buildTriggers = []string{"create", "build"}
	fixTriggers   = []string{"fix", "debug"}

	buildTemplates = []Template{
		{Title: "Analyze requirements", Description: "Break down the goal into concrete requirements", Priority: todo.PriorityHigh, EstimatedDuration: 10, Tags: []string{"analysis"}},
		{Title: "Design solution", Description: "Outline the approach and components", Priority: todo.PriorityMedium, EstimatedDuration: 15, Tags: []string{"design"}},
		{Title: "Implement solution", Description: "Write the implementation", Priority: todo.PriorityCritical, EstimatedDuration: 30, Tags: []string{"implementation", "coding"}},
		{Title: "Validate implementation", Description: "Test the implementation against the requirements", Priority: todo.PriorityHigh, EstimatedDuration: 10, Tags: []string{"testing"}},
	}
	fixTemplates = []Template{
		{Title: "Identify root cause", Description: "Reproduce the problem and locate its origin", Priority: todo.PriorityCritical, EstimatedDuration: 20, Tags: []string{"debugging"}},
		{Title: "Implement fix", Description: "Apply the change that resolves the root cause", Priority: todo.PriorityHigh, EstimatedDuration: 15, Tags: []string{"bugfix"}},
		{Title: "Verify resolution", Description: "Confirm the problem no longer occurs", Priority: todo.PriorityMedium, EstimatedDuration: 10, Tags: []string{"testing"}},
	}
)

// Name 实现 Strategy 接口。
func (KeywordStrategy) Name() string { return "keyword" }

// Templates 对小写化后的目标做子串匹配，create/build 组在 fix/debug 组之前。
func (KeywordStrategy) Templates(goal string) []Template {
	normalized := strings.ToLower(goal)
	result := make([]Template, 0, len(buildTemplates)+len(fixTemplates))
	if containsAny(normalized, buildTriggers) {
		result = append(result, cloneTemplates(buildTemplates)...)
	}
	if containsAny(normalized, fixTriggers) {
		result = append(result, cloneTemplates(fixTemplates)...)
	}
	return result
}

func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

func cloneTemplates(in []Template) []Template {
	out := make([]Template, len(in))
	for i, tpl := range in {
		out[i] = tpl
		out[i].Tags = append([]string(nil), tpl.Tags...)
	}
	return out
}

var _ Strategy = KeywordStrategy{}
