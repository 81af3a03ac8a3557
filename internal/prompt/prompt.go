package prompt

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type TaskType int

const (
	FieldsFiltersPivotsSorts TaskType = iota + 1
	Pivots
	Limits
	MergeValidate
	DashboardSummarize
	ExplorationOutput
)

var taskNames = map[TaskType]string{
	FieldsFiltersPivotsSorts: "fields_filters_pivots_sorts",
	Pivots:                   "pivots",
	Limits:                   "limits",
	MergeValidate:            "merge_validate",
	DashboardSummarize:       "dashboard_summarize",
	ExplorationOutput:        "exploration_output",
}

func (t TaskType) String() string {
	if name, ok := taskNames[t]; ok {
		return name
	}
	return fmt.Sprintf("task(%d)", int(t))
}

func ParseTaskType(raw string) (TaskType, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for task, name := range taskNames {
		if name == normalized {
			return task, nil
		}
	}
	return 0, fmt.Errorf("unknown prompt task type %q", raw)
}

const (
	placeholderUserInput       = "userInput"
	placeholderModelFields     = "serializedModelFields"
	placeholderPotentialFields = "potentialFields"
	placeholderMergedResults   = "mergedResults"
	placeholderTileContext     = "tileContext"
)

var declaredPlaceholders = map[TaskType][]string{
	FieldsFiltersPivotsSorts: {placeholderModelFields, placeholderUserInput},
	Pivots:                   {placeholderPotentialFields, placeholderUserInput},
	Limits:                   {placeholderUserInput},
	MergeValidate:            {placeholderMergedResults, placeholderUserInput},
	DashboardSummarize:       {placeholderTileContext, placeholderModelFields, placeholderUserInput},
	ExplorationOutput:        {placeholderModelFields, placeholderUserInput},
}

// Vars carries the values substituted into a template. Only the variables
// declared for the rendered task type may be set.
type Vars struct {
	UserInput             string
	SerializedModelFields string
	PotentialFields       string
	MergedResults         string
	TileContext           string
}

func (v Vars) byPlaceholder() map[string]string {
	return map[string]string{
		placeholderUserInput:       v.UserInput,
		placeholderModelFields:     v.SerializedModelFields,
		placeholderPotentialFields: v.PotentialFields,
		placeholderMergedResults:   v.MergedResults,
		placeholderTileContext:     v.TileContext,
	}
}

type Catalog struct {
	templates map[TaskType]string
}

func NewCatalog(overrides map[TaskType]string) (*Catalog, error) {
	templates := make(map[TaskType]string, len(defaultTemplates))
	for task, template := range defaultTemplates {
		templates[task] = template
	}
	for task, template := range overrides {
		if _, ok := taskNames[task]; !ok {
			return nil, fmt.Errorf("override for unknown prompt task type %d", int(task))
		}
		if strings.TrimSpace(template) == "" {
			return nil, fmt.Errorf("override for %s is empty", task)
		}
		templates[task] = template
	}
	return &Catalog{templates: templates}, nil
}

func (c *Catalog) Template(task TaskType) (string, bool) {
	template, ok := c.templates[task]
	return template, ok
}

// Render substitutes the task's declared placeholders and escapes the result
// so it can be embedded as a single-quoted one-line SQL string literal.
func (c *Catalog) Render(task TaskType, vars Vars) (string, error) {
	template, ok := c.templates[task]
	if !ok {
		return "", fmt.Errorf("no template for prompt task type %s", task)
	}
	declared := declaredPlaceholders[task]
	values := vars.byPlaceholder()

	allowed := make(map[string]struct{}, len(declared))
	for _, name := range declared {
		allowed[name] = struct{}{}
	}
	undeclared := make([]string, 0)
	for name, value := range values {
		if value == "" {
			continue
		}
		if _, ok := allowed[name]; !ok {
			undeclared = append(undeclared, name)
		}
	}
	if len(undeclared) > 0 {
		sort.Strings(undeclared)
		return "", fmt.Errorf("variables %v are not declared for prompt task type %s", undeclared, task)
	}

	rendered := template
	for _, name := range declared {
		rendered = strings.ReplaceAll(rendered, "{{"+name+"}}", values[name])
	}
	return Escape(rendered), nil
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\r\n", `\n`,
	"\n", `\n`,
	"\r", `\n`,
)

// Escape makes text safe to embed in a single-quoted, single-line SQL string literal.
func Escape(text string) string {
	return literalEscaper.Replace(text)
}

// LoadOverrides reads a YAML document mapping task type names to replacement templates.
func LoadOverrides(path string) (map[TaskType]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt overrides %q: %w", path, err)
	}
	return ParseOverrides(data)
}

func ParseOverrides(data []byte) (map[TaskType]string, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode prompt overrides: %w", err)
	}
	overrides := make(map[TaskType]string, len(raw))
	for name, template := range raw {
		task, err := ParseTaskType(name)
		if err != nil {
			return nil, err
		}
		overrides[task] = template
	}
	return overrides, nil
}
