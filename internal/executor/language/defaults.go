package language

import "time"

// DefaultSpecs is the built-in language table.
func DefaultSpecs() []Spec {
	return []Spec{
		{
			ID:        "javascript",
			Name:      "JavaScript",
			Extension: ".js",
			Run:       StepSpec{Command: "node {src}", Timeout: 10 * time.Second},
		},
		{
			ID:        "python",
			Name:      "Python",
			Extension: ".py",
			Run: StepSpec{
				Command:   "python3 {src}",
				Fallbacks: []string{"python"},
				Timeout:   10 * time.Second,
			},
		},
		{
			ID:        "c",
			Name:      "C",
			Extension: ".c",
			Compile: &StepSpec{
				Command:   "gcc {src} -o {bin} -lm",
				Timeout:   10 * time.Second,
				Artifacts: []string{"{bin}"},
			},
			Run: StepSpec{Command: "{bin}", Timeout: 10 * time.Second},
		},
		{
			ID:        "cpp",
			Name:      "C++",
			Extension: ".cpp",
			Compile: &StepSpec{
				Command:   "g++ -std=c++17 -O2 {src} -o {bin}",
				Timeout:   10 * time.Second,
				Artifacts: []string{"{bin}"},
			},
			Run: StepSpec{Command: "{bin}", Timeout: 10 * time.Second},
		},
		{
			ID:        "java",
			Name:      "Java",
			Extension: ".java",
			Compile: &StepSpec{
				Command:   "javac {src}",
				Timeout:   15 * time.Second,
				Artifacts: []string{"{dir}/{entry}.class"},
			},
			Run:        StepSpec{Command: "java -cp {dir} {entry}", Timeout: 15 * time.Second},
			EntryPoint: "java-public-class",
		},
		{
			ID:        "dart",
			Name:      "Dart",
			Extension: ".dart",
			Run:       StepSpec{Command: "dart run {src}", Timeout: 15 * time.Second},
		},
		{
			ID:        "go",
			Name:      "Go",
			Extension: ".go",
			Run:       StepSpec{Command: "go run {src}", Timeout: 15 * time.Second},
		},
	}
}

// Defaults builds the built-in language table.
func Defaults() []Pipeline {
	pipelines, err := BuildAll(DefaultSpecs())
	if err != nil {
		panic(err)
	}
	return pipelines
}
