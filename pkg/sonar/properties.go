package sonar

import (
	"fmt"
	"strings"
)

// Properties describes the minimal project descriptor the scanner CLI
// needs to run against a bare directory, without version-control metadata.
type Properties struct {
	ProjectKey   string
	ProjectName  string
	Organization string
	ServerURL    string
	Sources      string
	Exclusions   []string
}

// DefaultExclusions keeps dependency and build output directories out of
// the scan.
var DefaultExclusions = []string{
	"**/node_modules/**",
	"**/vendor/**",
	"**/dist/**",
	"**/build/**",
	"**/.git/**",
}

// Render produces the sonar-project.properties file contents.
func (p Properties) Render() string {
	sources := p.Sources
	if sources == "" {
		sources = "."
	}

	exclusions := p.Exclusions
	if len(exclusions) == 0 {
		exclusions = DefaultExclusions
	}

	var b strings.Builder
	fmt.Fprintf(&b, "sonar.projectKey=%s\n", p.ProjectKey)
	fmt.Fprintf(&b, "sonar.projectName=%s\n", p.ProjectName)
	if p.Organization != "" {
		fmt.Fprintf(&b, "sonar.organization=%s\n", p.Organization)
	}
	if p.ServerURL != "" {
		fmt.Fprintf(&b, "sonar.host.url=%s\n", p.ServerURL)
	}
	fmt.Fprintf(&b, "sonar.sources=%s\n", sources)
	fmt.Fprintf(&b, "sonar.exclusions=%s\n", strings.Join(exclusions, ","))
	b.WriteString("sonar.sourceEncoding=UTF-8\n")
	b.WriteString("sonar.scm.disabled=true\n")

	return b.String()
}
