package core

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/valyala/fasttemplate"
	"gopkg.in/yaml.v3"

	"vqagen/models"
)

// Placeholders use {{name}} so literal JSON braces inside prompt examples
// survive untouched.
const (
	placeholderStart = "{{"
	placeholderEnd   = "}}"
)

// templateFile is the on-disk YAML layout: category name -> prompt skeleton.
type templateFile struct {
	Templates     map[string]string `yaml:"templates"`
	EvalTemplates map[string]string `yaml:"eval_templates"`
}

// TemplateStore holds the parsed prompt skeletons. Loaded once at startup,
// read-only thereafter.
type TemplateStore struct {
	standard      map[string]*fasttemplate.Template
	eval          map[string]*fasttemplate.Template
	standardNames []string
	evalNames     []string
}

// LoadTemplates reads and parses the YAML template file. A missing or empty
// file is fatal to the run.
func LoadTemplates(path string) (*TemplateStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template file %q: %w", path, err)
	}

	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse template file %q: %w", path, err)
	}
	if len(tf.Templates) == 0 && len(tf.EvalTemplates) == 0 {
		return nil, fmt.Errorf("template file %q defines no templates", path)
	}

	store := &TemplateStore{
		standard: make(map[string]*fasttemplate.Template, len(tf.Templates)),
		eval:     make(map[string]*fasttemplate.Template, len(tf.EvalTemplates)),
	}
	if store.standardNames, err = compile(tf.Templates, store.standard); err != nil {
		return nil, fmt.Errorf("template file %q: %w", path, err)
	}
	if store.evalNames, err = compile(tf.EvalTemplates, store.eval); err != nil {
		return nil, fmt.Errorf("template file %q: %w", path, err)
	}
	return store, nil
}

func compile(src map[string]string, dst map[string]*fasttemplate.Template) ([]string, error) {
	names := make([]string, 0, len(src))
	for name, text := range src {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("template %q is empty", name)
		}
		tpl, err := fasttemplate.NewTemplate(text, placeholderStart, placeholderEnd)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", name, err)
		}
		dst[name] = tpl
		names = append(names, name)
	}
	// Sorted so category iteration and hashing stay deterministic.
	sort.Strings(names)
	return names, nil
}

// Categories returns the sorted category names for the requested mode.
func (s *TemplateStore) Categories(eval bool) []string {
	src := s.standardNames
	if eval {
		src = s.evalNames
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// Has reports whether a category exists in the requested mode.
func (s *TemplateStore) Has(name string, eval bool) bool {
	if eval {
		_, ok := s.eval[name]
		return ok
	}
	_, ok := s.standard[name]
	return ok
}

// Fill renders the named template with the record's placeholder values.
// Placeholders without a value collect into a single MissingFieldError.
func (s *TemplateStore) Fill(name string, eval bool, recordID string, values map[string]string) (string, error) {
	set := s.standard
	if eval {
		set = s.eval
	}
	tpl, ok := set[name]
	if !ok {
		return "", fmt.Errorf("unknown template category %q", name)
	}

	missing := make(map[string]bool)
	out := tpl.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		tag = strings.TrimSpace(tag)
		if v, ok := values[tag]; ok {
			return w.Write([]byte(v))
		}
		missing[tag] = true
		return 0, nil
	})
	if len(missing) > 0 {
		fields := make([]string, 0, len(missing))
		for f := range missing {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		return "", &models.MissingFieldError{RecordID: recordID, Category: name, Fields: fields}
	}
	return out, nil
}
