// Package language holds the immutable table describing how each supported
// language is built and run inside a workspace.
package language

import (
	"fmt"
	"strings"

	"github.com/google/shlex"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
)

// Profile describes how to compile and run one language.
// Commands are templates relative to the workspace directory; {src} and
// {bin} expand to SourceFile and Artifact.
type Profile struct {
	ID         domain.Language
	SourceFile string
	// Artifact must exist after a successful build. Empty for interpreted languages.
	Artifact string
	// BuildCmd is empty for languages without a build step.
	BuildCmd string
	RunCmd   string
	Version  string
}

// HasBuild reports whether the profile specifies a build step.
func (p Profile) HasBuild() bool {
	return strings.TrimSpace(p.BuildCmd) != ""
}

// BuildArgs tokenizes the build command.
func (p Profile) BuildArgs() ([]string, error) {
	if !p.HasBuild() {
		return nil, nil
	}
	return p.expand(p.BuildCmd)
}

// RunArgs tokenizes the run command.
func (p Profile) RunArgs() ([]string, error) {
	return p.expand(p.RunCmd)
}

func (p Profile) expand(tpl string) ([]string, error) {
	expanded := strings.ReplaceAll(tpl, "{src}", p.SourceFile)
	expanded = strings.ReplaceAll(expanded, "{bin}", p.Artifact)
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", tpl, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("command %q is empty after expansion", tpl)
	}
	return fields, nil
}
