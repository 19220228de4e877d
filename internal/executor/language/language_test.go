package language

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	reg, err := NewRegistry(Defaults()...)
	require.NoError(t, err)

	assert.Equal(t, []string{"c", "cpp", "dart", "go", "java", "javascript", "python"}, reg.IDs())

	tests := []struct {
		id       string
		compiled bool
		entry    bool
		run      []string
		timeout  time.Duration
	}{
		{id: "javascript", run: []string{"node", "{src}"}, timeout: 10 * time.Second},
		{id: "python", run: []string{"python3", "{src}"}, timeout: 10 * time.Second},
		{id: "c", compiled: true, run: []string{"{bin}"}, timeout: 10 * time.Second},
		{id: "cpp", compiled: true, run: []string{"{bin}"}, timeout: 10 * time.Second},
		{id: "java", compiled: true, entry: true, run: []string{"java", "-cp", "{dir}", "{entry}"}, timeout: 15 * time.Second},
		{id: "dart", run: []string{"dart", "run", "{src}"}, timeout: 15 * time.Second},
		{id: "go", run: []string{"go", "run", "{src}"}, timeout: 15 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			p, err := reg.Resolve(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.compiled, p.Compiled())
			assert.Equal(t, tt.entry, p.EntryPoint != nil)
			assert.Equal(t, tt.run, p.Run.Command)
			assert.Equal(t, tt.timeout, p.Run.Timeout)
		})
	}
}

func TestDefaults_PythonFallback(t *testing.T) {
	reg, err := NewRegistry(Defaults()...)
	require.NoError(t, err)

	p, err := reg.Resolve("python")
	require.NoError(t, err)
	assert.Equal(t, []string{"python3", "python"}, p.Run.Programs())
}

func TestResolve_Unknown(t *testing.T) {
	reg, err := NewRegistry(Defaults()...)
	require.NoError(t, err)

	_, err = reg.Resolve("cobol")
	assert.True(t, errors.Is(err, ErrUnsupportedLanguage))
	assert.False(t, reg.Supports("cobol"))
	assert.True(t, reg.Supports("c"))
}

func TestNewRegistry_Validation(t *testing.T) {
	run := Step{Command: []string{"sh", "{src}"}}

	tests := []struct {
		name      string
		pipelines []Pipeline
	}{
		{name: "empty", pipelines: nil},
		{name: "missing id", pipelines: []Pipeline{{Extension: ".sh", Run: run}}},
		{name: "bad extension", pipelines: []Pipeline{{ID: "sh", Extension: "sh", Run: run}}},
		{name: "no run command", pipelines: []Pipeline{{ID: "sh", Extension: ".sh"}}},
		{name: "empty compile", pipelines: []Pipeline{{ID: "sh", Extension: ".sh", Run: run, Compile: &Step{}}}},
		{name: "entry without resolver", pipelines: []Pipeline{{ID: "sh", Extension: ".sh", Run: Step{Command: []string{"run", "{entry}"}}}}},
		{name: "duplicate", pipelines: []Pipeline{
			{ID: "sh", Extension: ".sh", Run: run},
			{ID: "sh", Extension: ".sh", Run: run},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.pipelines...)
			assert.Error(t, err)
		})
	}
}

func TestStepExpand(t *testing.T) {
	step := Step{
		Command:   []string{"gcc", "{src}", "-o", "{bin}", "-lm"},
		Artifacts: []string{"{bin}", "{dir}/{entry}.class"},
	}
	vars := Vars{
		Source: "/w/abc/program file.c",
		Binary: "/w/abc/program",
		Dir:    "/w/abc",
		Entry:  "Main",
	}

	assert.Equal(t, []string{"gcc", "/w/abc/program file.c", "-o", "/w/abc/program", "-lm"}, step.Expand(vars))
	assert.Equal(t, []string{"/w/abc/program", "/w/abc/Main.class"}, step.ExpandArtifacts(vars))

	// The template itself is untouched.
	assert.Equal(t, "{src}", step.Command[1])
}

func TestStepExpand_NoShellInterpretation(t *testing.T) {
	step := Step{Command: []string{"node", "{src}"}}
	args := step.Expand(Vars{Source: `/tmp/x"; rm -rf / #.js`})
	assert.Equal(t, []string{"node", `/tmp/x"; rm -rf / #.js`}, args)
}

func TestParseCommand(t *testing.T) {
	args, err := ParseCommand(`g++ -std=c++17 -DNAME="hello world" {src} -o {bin}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"g++", "-std=c++17", "-DNAME=hello world", "{src}", "-o", "{bin}"}, args)

	_, err = ParseCommand("   ")
	assert.Error(t, err)

	_, err = ParseCommand(`echo "unterminated`)
	assert.Error(t, err)
}

func TestJavaPublicClass(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		want    string
		wantErr bool
	}{
		{name: "simple", source: "public class Main { public static void main(String[] a) {} }", want: "Main"},
		{name: "extra whitespace", source: "import java.util.*;\n\npublic   class\n  HelloWorld_2 {}", want: "HelloWorld_2"},
		{name: "first match wins", source: "public class First {} public class Second {}", want: "First"},
		{name: "package-private class", source: "class Main { }", wantErr: true},
		{name: "empty", source: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JavaPublicClass(tt.source)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrNoEntryPoint))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookupResolver(t *testing.T) {
	r, err := LookupResolver("java-public-class")
	require.NoError(t, err)
	name, err := r("public class Demo {}")
	require.NoError(t, err)
	assert.Equal(t, "Demo", name)

	_, err = LookupResolver("kotlin-main")
	assert.Error(t, err)
}

func TestSpecBuild(t *testing.T) {
	spec := Spec{
		ID:        "ts",
		Extension: ".ts",
		Compile: &StepSpec{
			Command:   "tsc --outDir {dir} {src}",
			Timeout:   20 * time.Second,
			Artifacts: []string{"{dir}/program.js"},
		},
		Run: StepSpec{Command: "node {dir}/program.js"},
	}

	p, err := spec.Build()
	require.NoError(t, err)
	assert.Equal(t, "ts", p.Name, "name defaults to the id")
	require.NotNil(t, p.Compile)
	assert.Equal(t, []string{"tsc", "--outDir", "{dir}", "{src}"}, p.Compile.Command)
	assert.Equal(t, 20*time.Second, p.Compile.Timeout)
	assert.Equal(t, "program.ts", p.SourceFile())

	_, err = Spec{ID: "bad", Extension: ".x", Run: StepSpec{Command: ""}}.Build()
	assert.Error(t, err)

	_, err = Spec{ID: "bad", Extension: ".x", Run: StepSpec{Command: "x"}, EntryPoint: "nope"}.Build()
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	base := []Spec{
		{ID: "a", Extension: ".a", Run: StepSpec{Command: "a"}},
		{ID: "b", Extension: ".b", Run: StepSpec{Command: "b"}},
	}
	overrides := []Spec{
		{ID: "b", Extension: ".b", Run: StepSpec{Command: "b2"}},
		{ID: "c", Extension: ".c", Run: StepSpec{Command: "c"}},
	}

	merged := Merge(base, overrides)
	require.Len(t, merged, 3)
	assert.Equal(t, "a", merged[0].Run.Command)
	assert.Equal(t, "b2", merged[1].Run.Command)
	assert.Equal(t, "c", merged[2].ID)
	assert.Equal(t, "b", base[1].Run.Command, "base is not modified")
}
