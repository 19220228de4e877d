// Package language describes how each supported language is compiled and run.
//
// A Pipeline is a static description: a source file extension, an optional
// compile Step, a run Step and, for languages whose runtime needs a named
// entry symbol, an EntryPointResolver. Commands are argument-vector templates
// whose elements may contain placeholders:
//
//	{src}    absolute path of the source file
//	{bin}    absolute path of the compiled binary
//	{dir}    the execution's private directory
//	{entry}  the resolved entry-point identifier
//
// Placeholders are substituted element by element; nothing is ever handed to
// a shell.
package language

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/shlex"
)

// BinaryName is the file name compiled programs are written to.
const BinaryName = "program"

// SourceBaseName is the file name (without extension) the submitted source is
// written to.
const SourceBaseName = "program"

// EntryPointResolver extracts the entry symbol from source text.
type EntryPointResolver func(source string) (string, error)

// Step is one process invocation of a pipeline.
type Step struct {
	// Command is the argument-vector template.
	Command []string
	// Fallbacks are alternative programs tried in order, in place of
	// Command[0], when the previous program is not installed.
	Fallbacks []string
	// Timeout bounds the step. Zero means the engine default.
	Timeout time.Duration
	// Artifacts are path templates of files the step creates.
	Artifacts []string
}

// Vars are the values substituted into templates.
type Vars struct {
	Source string
	Binary string
	Dir    string
	Entry  string
}

func (v Vars) replacer() *strings.Replacer {
	return strings.NewReplacer(
		"{src}", v.Source,
		"{bin}", v.Binary,
		"{dir}", v.Dir,
		"{entry}", v.Entry,
	)
}

// Expand returns the argument vector with placeholders substituted.
func (s Step) Expand(v Vars) []string {
	r := v.replacer()
	args := make([]string, len(s.Command))
	for i, tok := range s.Command {
		args[i] = r.Replace(tok)
	}
	return args
}

// ExpandArtifacts returns the artifact paths with placeholders substituted.
func (s Step) ExpandArtifacts(v Vars) []string {
	r := v.replacer()
	paths := make([]string, len(s.Artifacts))
	for i, tpl := range s.Artifacts {
		paths[i] = r.Replace(tpl)
	}
	return paths
}

// Programs lists Command[0] followed by the fallbacks.
func (s Step) Programs() []string {
	if len(s.Command) == 0 {
		return nil
	}
	return append([]string{s.Command[0]}, s.Fallbacks...)
}

func (s Step) uses(placeholder string) bool {
	for _, tok := range s.Command {
		if strings.Contains(tok, placeholder) {
			return true
		}
	}
	for _, tpl := range s.Artifacts {
		if strings.Contains(tpl, placeholder) {
			return true
		}
	}
	return false
}

// Pipeline is the complete recipe for one language.
type Pipeline struct {
	ID        string
	Name      string
	Extension string
	Compile   *Step
	Run       Step
	// EntryPoint is set for languages whose run step needs a symbol derived
	// from the source, and whose source file must be named after it.
	EntryPoint EntryPointResolver
}

// Compiled reports whether the pipeline has a compile step.
func (p Pipeline) Compiled() bool {
	return p.Compile != nil
}

// SourceFile is the name the submitted source is first written to.
func (p Pipeline) SourceFile() string {
	return SourceBaseName + p.Extension
}

// EntrySourceFile is the name the source must carry for entry point entry.
func (p Pipeline) EntrySourceFile(entry string) string {
	return entry + p.Extension
}

func (p Pipeline) validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("language: pipeline missing id")
	}
	if !strings.HasPrefix(p.Extension, ".") {
		return fmt.Errorf("language %q: extension %q must start with a dot", p.ID, p.Extension)
	}
	if len(p.Run.Command) == 0 {
		return fmt.Errorf("language %q: run command is required", p.ID)
	}
	if p.Compile != nil && len(p.Compile.Command) == 0 {
		return fmt.Errorf("language %q: compile step has no command", p.ID)
	}
	if p.EntryPoint == nil {
		if p.Run.uses("{entry}") || (p.Compile != nil && p.Compile.uses("{entry}")) {
			return fmt.Errorf("language %q: {entry} used without an entry-point resolver", p.ID)
		}
	}
	return nil
}

// ParseCommand splits a command template into an argument vector using shell
// word rules (quotes, escapes) without any expansion.
func ParseCommand(template string) ([]string, error) {
	if strings.TrimSpace(template) == "" {
		return nil, fmt.Errorf("language: command template is empty")
	}
	fields, err := shlex.Split(template)
	if err != nil {
		return nil, fmt.Errorf("language: parsing command %q: %w", template, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("language: command %q is empty after parsing", template)
	}
	return fields, nil
}
