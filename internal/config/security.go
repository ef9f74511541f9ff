package config

import (
	"fmt"
	"regexp"
	"strings"
)

// credentialRules recognise API credentials written inline in provision.lua.
var credentialRules = []struct {
	kind string
	re   *regexp.Regexp
}{
	{"inline token", regexp.MustCompile(`(?i)\b(token|auth[_-]?token|access[_-]?token|bearer)\s*=\s*['"][A-Za-z0-9_-]{15,}['"]`)},
	{"GitHub token", regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}`)},
	{"GitHub fine-grained token", regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{22,}`)},
	{"credentials in URL", regexp.MustCompile(`https?://[^/\s:@'"]+:[^/\s@'"]+@`)},
}

// SensitiveDataFinding is one suspected credential.
type SensitiveDataFinding struct {
	Kind    string
	Line    int    // 1-based
	Preview string // the line with the value redacted
}

// DetectSensitiveData reports lines of settings source that look like they
// carry a credential. Comment lines are skipped.
func DetectSensitiveData(content string) []SensitiveDataFinding {
	var findings []SensitiveDataFinding

	for i, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		for _, rule := range credentialRules {
			if rule.re.MatchString(line) {
				findings = append(findings, SensitiveDataFinding{
					Kind:    rule.kind,
					Line:    i + 1,
					Preview: redactSensitiveValue(line),
				})
			}
		}
	}

	return findings
}

// redactSensitiveValue keeps the left side of an assignment. Lines without
// one keep a short prefix.
func redactSensitiveValue(line string) string {
	if key, _, ok := strings.Cut(line, "="); ok {
		return strings.TrimSpace(key) + " = [REDACTED]"
	}

	line = strings.TrimSpace(line)
	if len(line) > 12 {
		return line[:12] + "... [REDACTED]"
	}
	return "[REDACTED]"
}

// FormatSensitiveDataWarning renders findings for path as a terminal warning.
// It returns "" when there are none.
func FormatSensitiveDataWarning(path string, findings []SensitiveDataFinding) string {
	if len(findings) == 0 {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "WARNING: %s may contain hardcoded credentials\n\n", path)
	for i, f := range findings {
		fmt.Fprintf(&sb, "%d. %s (line %d)\n", i+1, f.Kind, f.Line)
		fmt.Fprintf(&sb, "   Preview: %s\n", f.Preview)
	}
	sb.WriteString("\nSet GITHUB_TOKEN or PROVISION_TOKEN in the environment instead.\n")

	return sb.String()
}
