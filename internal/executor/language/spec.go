package language

import (
	"fmt"
	"time"
)

// Spec is the configuration form of a Pipeline, as read from YAML.
//
//	- id: c
//	  name: C
//	  extension: .c
//	  compile:
//	    command: gcc {src} -o {bin} -lm
//	    timeout: 10s
//	    artifacts: ["{bin}"]
//	  run:
//	    command: "{bin}"
type Spec struct {
	ID         string    `yaml:"id"`
	Name       string    `yaml:"name"`
	Extension  string    `yaml:"extension"`
	Compile    *StepSpec `yaml:"compile,omitempty"`
	Run        StepSpec  `yaml:"run"`
	EntryPoint string    `yaml:"entry_point,omitempty"`
}

// StepSpec is the configuration form of a Step.
type StepSpec struct {
	Command   string        `yaml:"command"`
	Fallbacks []string      `yaml:"fallbacks,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
	Artifacts []string      `yaml:"artifacts,omitempty"`
}

func (s StepSpec) build() (Step, error) {
	args, err := ParseCommand(s.Command)
	if err != nil {
		return Step{}, err
	}
	if s.Timeout < 0 {
		return Step{}, fmt.Errorf("language: negative timeout %s", s.Timeout)
	}
	return Step{
		Command:   args,
		Fallbacks: append([]string(nil), s.Fallbacks...),
		Timeout:   s.Timeout,
		Artifacts: append([]string(nil), s.Artifacts...),
	}, nil
}

// Build turns the spec into a validated Pipeline.
func (s Spec) Build() (Pipeline, error) {
	p := Pipeline{
		ID:        s.ID,
		Name:      s.Name,
		Extension: s.Extension,
	}
	if p.Name == "" {
		p.Name = s.ID
	}

	run, err := s.Run.build()
	if err != nil {
		return Pipeline{}, fmt.Errorf("language %q run step: %w", s.ID, err)
	}
	p.Run = run

	if s.Compile != nil {
		compile, err := s.Compile.build()
		if err != nil {
			return Pipeline{}, fmt.Errorf("language %q compile step: %w", s.ID, err)
		}
		p.Compile = &compile
	}

	if s.EntryPoint != "" {
		resolver, err := LookupResolver(s.EntryPoint)
		if err != nil {
			return Pipeline{}, err
		}
		p.EntryPoint = resolver
	}

	if err := p.validate(); err != nil {
		return Pipeline{}, err
	}
	return p, nil
}

// BuildAll builds every spec, stopping at the first error.
func BuildAll(specs []Spec) ([]Pipeline, error) {
	out := make([]Pipeline, 0, len(specs))
	for _, s := range specs {
		p, err := s.Build()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Merge returns base with every spec in overrides either replacing the spec
// of the same ID or appended after it.
func Merge(base, overrides []Spec) []Spec {
	out := append([]Spec(nil), base...)
	index := make(map[string]int, len(out))
	for i, s := range out {
		index[s.ID] = i
	}
	for _, o := range overrides {
		if i, ok := index[o.ID]; ok {
			out[i] = o
			continue
		}
		index[o.ID] = len(out)
		out = append(out, o)
	}
	return out
}
