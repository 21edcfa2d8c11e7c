package services

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed template.yaml
var defaultTemplateYAML []byte

type templateFile struct {
	Sections []templateSection `yaml:"sections"`
}

type templateSection struct {
	Name      string             `yaml:"name"`
	Questions []templateQuestion `yaml:"questions"`
}

type templateQuestion struct {
	ID        string         `yaml:"id"`
	Prompt    string         `yaml:"prompt"`
	Type      string         `yaml:"type"`
	Options   []string       `yaml:"options"`
	DependsOn string         `yaml:"depends_on"`
	SKULimits map[string]int `yaml:"sku_limits"`
	Optional  bool           `yaml:"optional"`
}

// LoadTemplate parses a YAML checklist template into a fresh question
// collection with contiguous orders. Unknown question types and duplicate
// ids are load-time errors.
func LoadTemplate(data []byte) ([]*Question, error) {
	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, NewInvalidError("parse template: " + err.Error())
	}
	if len(tf.Sections) == 0 {
		return nil, NewInvalidError("template has no sections")
	}
	var out []*Question
	seen := map[string]bool{}
	for _, sec := range tf.Sections {
		for _, tq := range sec.Questions {
			qt, err := ParseQuestionType(tq.Type)
			if err != nil {
				return nil, NewInvalidError(fmt.Sprintf("question %s: unknown type %q", tq.ID, tq.Type))
			}
			if seen[tq.ID] {
				return nil, NewInvalidError("duplicate question id: " + tq.ID)
			}
			seen[tq.ID] = true
			q := &Question{
				ID:      tq.ID,
				Section: sec.Name,
				Type:    qt,
				Prompt:  tq.Prompt,
				Options: append([]string(nil), tq.Options...),
				Meta: QuestionMeta{
					DependsOn: tq.DependsOn,
					SKULimits: tq.SKULimits,
					Optional:  tq.Optional,
				},
			}
			if err := ValidateQuestion(q); err != nil {
				return nil, err
			}
			out = append(out, q)
		}
	}
	renumber(out)
	return out, nil
}

// LoadTemplateFile reads a template from disk, falling back to the
// embedded default when path is empty.
func LoadTemplateFile(path string) ([]*Question, error) {
	if path == "" {
		return LoadTemplate(defaultTemplateYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	return LoadTemplate(data)
}

// DefaultTemplate returns the embedded checklist template.
func DefaultTemplate() []*Question {
	qs, err := LoadTemplate(defaultTemplateYAML)
	if err != nil {
		// The embedded template is validated by tests; a parse failure
		// here is a build defect.
		panic(err)
	}
	return qs
}
