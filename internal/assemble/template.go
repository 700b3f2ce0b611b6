// Package assemble fills a per-intent retrieval template under a token
// budget, producing the final ordered pack list plus skip disclosures.
package assemble

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	ckrerrors "ckr/internal/errors"
	"ckr/internal/intent"
	"ckr/internal/retrieval"
)

// RetrievalStep is one named slot in a context template.
type RetrievalStep struct {
	Name         string               `json:"name" yaml:"name"`
	Source       string               `json:"source" yaml:"source"`
	TokenBudget  int                  `json:"tokenBudget" yaml:"token_budget"`
	Required     bool                 `json:"required" yaml:"required"`
	AllowedTypes []retrieval.PackType `json:"allowedTypes" yaml:"allowed_types"`
}

func (s *RetrievalStep) allows(t retrieval.PackType) bool {
	if !t.Known() {
		return false
	}
	for _, a := range s.AllowedTypes {
		if a == t {
			return true
		}
	}
	return false
}

// ContextTemplate is the ordered retrieval plan for one intent.
// Templates are static configuration: loaded once, never mutated at
// request time.
type ContextTemplate struct {
	Intent      string          `json:"intent" yaml:"intent"`
	Steps       []RetrievalStep `json:"steps" yaml:"steps"`
	TotalBudget int             `json:"totalBudget" yaml:"total_budget"`
}

// Validate checks template shape.
func (t *ContextTemplate) Validate() error {
	if t.Intent == "" {
		return ckrerrors.New(ckrerrors.TemplateInvalid, "template missing intent label", nil)
	}
	if len(t.Steps) == 0 {
		return ckrerrors.New(ckrerrors.TemplateInvalid, fmt.Sprintf("template %q has no steps", t.Intent), nil)
	}
	if t.TotalBudget <= 0 {
		return ckrerrors.New(ckrerrors.TemplateInvalid, fmt.Sprintf("template %q has non-positive budget", t.Intent), nil)
	}
	for _, s := range t.Steps {
		if s.Name == "" {
			return ckrerrors.New(ckrerrors.TemplateInvalid, fmt.Sprintf("template %q has an unnamed step", t.Intent), nil)
		}
		if s.TokenBudget <= 0 {
			return ckrerrors.New(ckrerrors.TemplateInvalid, fmt.Sprintf("step %q has non-positive budget", s.Name), nil)
		}
		for _, pt := range s.AllowedTypes {
			if !pt.Known() {
				return ckrerrors.New(ckrerrors.TemplateInvalid, fmt.Sprintf("step %q allows unknown pack type %q", s.Name, pt), nil)
			}
		}
	}
	return nil
}

// Registry maps intent labels to templates. Construction installs the
// five defaults; additional templates arrive only through Register.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*ContextTemplate
}

// NewRegistry creates a registry seeded with the default templates.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[string]*ContextTemplate)}
	for _, t := range defaultTemplates() {
		r.templates[t.Intent] = t
	}
	return r
}

// Register adds or replaces a template after validation.
func (r *Registry) Register(t *ContextTemplate) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.Intent] = t
	return nil
}

// Lookup returns the template for an intent label.
func (r *Registry) Lookup(intentLabel string) (*ContextTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.templates[intentLabel]; ok {
		return t, nil
	}
	return nil, ckrerrors.New(ckrerrors.TemplateNotFound,
		fmt.Sprintf("no context template for intent %q", intentLabel), nil)
}

// Intents returns the registered intent labels.
func (r *Registry) Intents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.templates))
	for label := range r.templates {
		out = append(out, label)
	}
	return out
}

// LoadTemplateFile reads one or more templates from a YAML file and
// registers them. Used by `ckr templates` for workspace-local templates.
func (r *Registry) LoadTemplateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return ckrerrors.New(ckrerrors.TemplateInvalid, "cannot read template file", err)
	}

	var doc struct {
		Templates []*ContextTemplate `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return ckrerrors.New(ckrerrors.TemplateInvalid, "cannot parse template file", err)
	}

	for _, t := range doc.Templates {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// defaultTemplates builds the five built-in retrieval plans.
func defaultTemplates() []*ContextTemplate {
	return []*ContextTemplate{
		{
			Intent:      intent.LabelBugFix,
			TotalBudget: 6000,
			Steps: []RetrievalStep{
				{Name: "failing_code", Source: "semantic", TokenBudget: 2000, Required: true,
					AllowedTypes: []retrieval.PackType{retrieval.PackFunctionContext, retrieval.PackSymbolDefinition}},
				{Name: "call_paths", Source: "graph", TokenBudget: 1500, Required: true,
					AllowedTypes: []retrieval.PackType{retrieval.PackCallFlow, retrieval.PackChangeImpact}},
				{Name: "recent_changes", Source: "history", TokenBudget: 1500, Required: false,
					AllowedTypes: []retrieval.PackType{retrieval.PackGitHistory, retrieval.PackChangeImpact}},
				{Name: "similar_fixes", Source: "episodic", TokenBudget: 1000, Required: false,
					AllowedTypes: []retrieval.PackType{retrieval.PackSimilarTasks, retrieval.PackPatternContext}},
			},
		},
		{
			Intent:      intent.LabelArchitecture,
			TotalBudget: 6000,
			Steps: []RetrievalStep{
				{Name: "project_shape", Source: "docs", TokenBudget: 2000, Required: true,
					AllowedTypes: []retrieval.PackType{retrieval.PackProjectUnderstanding, retrieval.PackModuleContext}},
				{Name: "module_map", Source: "graph", TokenBudget: 2000, Required: true,
					AllowedTypes: []retrieval.PackType{retrieval.PackModuleContext, retrieval.PackCallFlow}},
				{Name: "decisions", Source: "docs", TokenBudget: 1500, Required: false,
					AllowedTypes: []retrieval.PackType{retrieval.PackDecisionContext, retrieval.PackDocContext}},
			},
		},
		{
			Intent:      intent.LabelFeature,
			TotalBudget: 6000,
			Steps: []RetrievalStep{
				{Name: "insertion_points", Source: "semantic", TokenBudget: 2000, Required: true,
					AllowedTypes: []retrieval.PackType{retrieval.PackFunctionContext, retrieval.PackModuleContext}},
				{Name: "similar_features", Source: "episodic", TokenBudget: 1500, Required: false,
					AllowedTypes: []retrieval.PackType{retrieval.PackSimilarTasks, retrieval.PackPatternContext}},
				{Name: "conventions", Source: "docs", TokenBudget: 1500, Required: false,
					AllowedTypes: []retrieval.PackType{retrieval.PackPatternContext, retrieval.PackDocContext}},
				{Name: "impact", Source: "graph", TokenBudget: 1000, Required: false,
					AllowedTypes: []retrieval.PackType{retrieval.PackChangeImpact}},
			},
		},
		{
			Intent:      intent.LabelSecurityAudit,
			TotalBudget: 6000,
			Steps: []RetrievalStep{
				{Name: "sensitive_surfaces", Source: "semantic", TokenBudget: 2500, Required: true,
					AllowedTypes: []retrieval.PackType{retrieval.PackFunctionContext, retrieval.PackSymbolDefinition}},
				{Name: "data_flows", Source: "graph", TokenBudget: 1500, Required: true,
					AllowedTypes: []retrieval.PackType{retrieval.PackCallFlow, retrieval.PackChangeImpact}},
				{Name: "decisions", Source: "docs", TokenBudget: 1000, Required: false,
					AllowedTypes: []retrieval.PackType{retrieval.PackDecisionContext, retrieval.PackDocContext}},
				{Name: "history", Source: "history", TokenBudget: 1000, Required: false,
					AllowedTypes: []retrieval.PackType{retrieval.PackGitHistory}},
			},
		},
		{
			Intent:      intent.LabelRefactoring,
			TotalBudget: 6000,
			Steps: []RetrievalStep{
				{Name: "target_definition", Source: "semantic", TokenBudget: 2000, Required: true,
					AllowedTypes: []retrieval.PackType{retrieval.PackSymbolDefinition, retrieval.PackFunctionContext}},
				{Name: "blast_radius", Source: "graph", TokenBudget: 2000, Required: true,
					AllowedTypes: []retrieval.PackType{retrieval.PackChangeImpact, retrieval.PackCallFlow}},
				{Name: "co_change", Source: "history", TokenBudget: 1000, Required: false,
					AllowedTypes: []retrieval.PackType{retrieval.PackGitHistory}},
				{Name: "patterns", Source: "episodic", TokenBudget: 1000, Required: false,
					AllowedTypes: []retrieval.PackType{retrieval.PackPatternContext, retrieval.PackSimilarTasks}},
			},
		},
	}
}
