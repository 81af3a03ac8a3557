package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEscape(t *testing.T) {
	got := Escape("Levi's\nline two\r\nthree")
	want := `Levi\'s\nline two\nthree`
	if got != want {
		t.Fatalf("Escape() = %q, want %q", got, want)
	}
	if strings.Contains(Escape("a\nb"), "\n") {
		t.Fatal("escaped text still contains a newline")
	}
	if got := Escape(`a\'b`); got != `a\\\'b` {
		t.Fatalf("Escape(backslash quote) = %q", got)
	}
}

func TestRenderSubstitutesEveryOccurrence(t *testing.T) {
	catalog, err := NewCatalog(map[TaskType]string{
		Limits: "Q1: {{userInput}} / Q2: {{userInput}}",
	})
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	got, err := catalog.Render(Limits, Vars{UserInput: "top 10"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got != "Q1: top 10 / Q2: top 10" {
		t.Fatalf("Render() = %q", got)
	}
}

func TestRenderLeavesUnresolvedPlaceholders(t *testing.T) {
	catalog, err := NewCatalog(map[TaskType]string{
		Limits: "{{userInput}} {{somethingElse}}",
	})
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	got, err := catalog.Render(Limits, Vars{UserInput: "q"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got != "q {{somethingElse}}" {
		t.Fatalf("Render() = %q", got)
	}
}

func TestRenderRejectsUndeclaredVariables(t *testing.T) {
	catalog, err := NewCatalog(nil)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	_, err = catalog.Render(Limits, Vars{UserInput: "q", MergedResults: "{}"})
	if err == nil {
		t.Fatal("expected error for undeclared variable")
	}
	if !strings.Contains(err.Error(), "mergedResults") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRenderEscapesOutput(t *testing.T) {
	catalog, err := NewCatalog(nil)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	got, err := catalog.Render(FieldsFiltersPivotsSorts, Vars{
		UserInput:             "sales for Levi's",
		SerializedModelFields: `[{"name":"products.brand"}]`,
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(got, "\n") {
		t.Fatal("rendered prompt contains a raw newline")
	}
	if !strings.Contains(got, `Levi\'s`) {
		t.Fatal("rendered prompt does not escape single quotes")
	}
	if !strings.Contains(got, `products.brand`) {
		t.Fatal("rendered prompt is missing the field dictionary")
	}
	if strings.Contains(got, "{{userInput}}") || strings.Contains(got, "{{serializedModelFields}}") {
		t.Fatal("rendered prompt still contains declared placeholders")
	}
}

func TestEveryTaskTypeHasDefaultTemplate(t *testing.T) {
	catalog, err := NewCatalog(nil)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	for task := range taskNames {
		template, ok := catalog.Template(task)
		if !ok || template == "" {
			t.Fatalf("missing default template for %s", task)
		}
		for _, name := range declaredPlaceholders[task] {
			if !strings.Contains(template, "{{"+name+"}}") {
				t.Fatalf("template %s does not use placeholder %s", task, name)
			}
		}
	}
}

func TestNewCatalogRejectsEmptyOverride(t *testing.T) {
	if _, err := NewCatalog(map[TaskType]string{Pivots: "  "}); err == nil {
		t.Fatal("expected error for empty override")
	}
	if _, err := NewCatalog(map[TaskType]string{TaskType(99): "x"}); err == nil {
		t.Fatal("expected error for unknown task type")
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := "limits: |\n  How many rows? {{userInput}}\nmerge_validate: \"{{mergedResults}} {{userInput}}\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write overrides: %v", err)
	}

	overrides, err := LoadOverrides(path)
	if err != nil {
		t.Fatalf("LoadOverrides() error = %v", err)
	}
	if len(overrides) != 2 {
		t.Fatalf("len(overrides) = %d", len(overrides))
	}
	if overrides[Limits] != "How many rows? {{userInput}}\n" {
		t.Fatalf("limits override = %q", overrides[Limits])
	}

	catalog, err := NewCatalog(overrides)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	got, err := catalog.Render(Limits, Vars{UserInput: "top 3"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got != `How many rows? top 3\n` {
		t.Fatalf("Render() = %q", got)
	}
}

func TestParseOverridesRejectsUnknownTask(t *testing.T) {
	if _, err := ParseOverrides([]byte("unknown_task: x\n")); err == nil {
		t.Fatal("expected error for unknown task name")
	}
}

func TestParseTaskTypeRoundTrip(t *testing.T) {
	for task, name := range taskNames {
		parsed, err := ParseTaskType(strings.ToUpper(name))
		if err != nil {
			t.Fatalf("ParseTaskType(%q) error = %v", name, err)
		}
		if parsed != task {
			t.Fatalf("ParseTaskType(%q) = %s", name, parsed)
		}
	}
}
