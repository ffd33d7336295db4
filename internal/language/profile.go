// Package language holds the fixed set of language profiles the execution
// service knows how to compile and run.
//
// A profile is configuration, never request data: the toolchain commands come
// from process start-up config only, so a submission can choose WHICH profile
// runs it but never WHAT binary gets spawned.
package language

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Placeholders expanded inside compile and run commands. They always expand
// to workspace-relative paths, so the same profile works for the host process
// backend and for the container backend (where the workspace is mounted
// somewhere else).
const (
	PlaceholderSource   = "{source}"
	PlaceholderArtifact = "{artifact}"
	PlaceholderWorkdir  = "{workdir}"
)

const (
	DefaultCompileTimeout = 10 * time.Second
	DefaultRunTimeout     = 5 * time.Second
	defaultSourceName     = "main"

	// V8 and the JVM commit code caches, GC metadata and thread stacks
	// before any user code runs, so they get more room than the default.
	vmMemoryLimit = 1 << 30
)

// Profile describes how to compile (optionally) and run one language.
type Profile struct {
	Key string
	// Extension of the source file, including the leading dot.
	Extension string
	// SourceName is the source file's base name without extension. Java needs
	// "Main" so the public class matches the file.
	SourceName string
	// Artifact is the file the compile stage produces inside the workspace.
	// Empty for direct-run profiles.
	Artifact       string
	CompileCommand []string
	RunCommand     []string
	CompileTimeout time.Duration
	RunTimeout     time.Duration
	// Image is only used by the docker backend.
	Image string
	// MemoryLimit overrides the backend's per-child memory ceiling. Zero
	// keeps the default; negative removes the ceiling.
	MemoryLimit int64
}

// Compiled reports whether the profile has a compile stage.
func (p Profile) Compiled() bool {
	return len(p.CompileCommand) > 0
}

// SourceFileName is the name the submission is written under.
func (p Profile) SourceFileName() string {
	name := p.SourceName
	if name == "" {
		name = defaultSourceName
	}
	return name + p.Extension
}

// Toolchain lists the host binaries the profile needs. Commands that start
// with a placeholder (running the compiled artifact) need nothing.
func (p Profile) Toolchain() []string {
	var bins []string
	for _, argv := range [][]string{p.CompileCommand, p.RunCommand} {
		if len(argv) == 0 || strings.HasPrefix(argv[0], "{") {
			continue
		}
		if !slices.Contains(bins, argv[0]) {
			bins = append(bins, argv[0])
		}
	}
	return bins
}

func (p Profile) clone() Profile {
	p.CompileCommand = slices.Clone(p.CompileCommand)
	p.RunCommand = slices.Clone(p.RunCommand)
	return p
}

func (p Profile) validate() error {
	if p.Key == "" {
		return fmt.Errorf("language profile is missing a key")
	}
	if !strings.HasPrefix(p.Extension, ".") || len(p.Extension) < 2 {
		return fmt.Errorf("language %q: extension %q must start with a dot", p.Key, p.Extension)
	}
	if strings.ContainsAny(p.SourceName, `/\`) || strings.ContainsAny(p.Artifact, `/\`) {
		return fmt.Errorf("language %q: source and artifact names must be plain file names", p.Key)
	}
	if len(p.RunCommand) == 0 {
		return fmt.Errorf("language %q: run command is required", p.Key)
	}
	if p.Compiled() && p.Artifact == "" {
		return fmt.Errorf("language %q: compiled profiles must name their artifact", p.Key)
	}
	if p.CompileTimeout < 0 || p.RunTimeout < 0 {
		return fmt.Errorf("language %q: timeouts cannot be negative", p.Key)
	}
	return nil
}

// Defaults returns the built-in profiles. Config may override or extend them.
func Defaults() []Profile {
	return []Profile{
		{
			Key:        "python",
			Extension:  ".py",
			RunCommand: []string{"python3", PlaceholderSource},
			Image:      "python:3.12-alpine",
		},
		{
			Key:         "javascript",
			Extension:   ".js",
			RunCommand:  []string{"node", PlaceholderSource},
			Image:       "node:22-alpine",
			MemoryLimit: vmMemoryLimit,
		},
		{
			Key:            "c",
			Extension:      ".c",
			Artifact:       "main",
			CompileCommand: []string{"gcc", "-O2", "-pipe", "-o", PlaceholderArtifact, PlaceholderSource, "-lm"},
			RunCommand:     []string{PlaceholderArtifact},
			Image:          "gcc:14",
		},
		{
			Key:            "cpp",
			Extension:      ".cpp",
			Artifact:       "main",
			CompileCommand: []string{"g++", "-O2", "-pipe", "-std=c++17", "-o", PlaceholderArtifact, PlaceholderSource},
			RunCommand:     []string{PlaceholderArtifact},
			Image:          "gcc:14",
		},
		{
			Key:            "java",
			Extension:      ".java",
			SourceName:     "Main",
			Artifact:       "Main.class",
			CompileCommand: []string{"javac", "-J-Xms16m", "-J-Xmx256m", PlaceholderSource},
			RunCommand:     []string{"java", "-Xms16m", "-Xmx256m", "-Xss8m", "-cp", PlaceholderWorkdir, "Main"},
			CompileTimeout: 20 * time.Second,
			Image:          "eclipse-temurin:21-jdk-alpine",
			MemoryLimit:    vmMemoryLimit,
		},
	}
}
