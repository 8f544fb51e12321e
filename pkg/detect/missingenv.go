package detect

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/opscart/k8s-ai-diagnostics/pkg/types"
)

// emptyEnvLine matches startup-script output of the form "NAME is: " with
// nothing after the colon, the convention crashing entrypoints use to echo
// their configuration.
var emptyEnvLine = regexp.MustCompile(`^([A-Z][A-Z0-9_]*) is:\s*$`)

// logLevelWords are common log tokens that happen to match the variable
// name pattern.
var logLevelWords = map[string]bool{
	"ERROR": true, "WARNING": true, "INFO": true, "DEBUG": true,
}

// envDefaults resolves a default value by variable name suffix. Names with
// no rule are skipped, never guessed.
var envDefaults = []struct {
	suffix string
	value  string
}{
	{"_HOST", "localhost"},
	{"_PASSWORD", "password123"},
	{"_PORT", "3306"},
}

// MissingEnvDetector infers unset environment variables from a crashing
// container's log excerpt.
type MissingEnvDetector struct{}

func (d *MissingEnvDetector) Name() string { return "missing-env" }

func (d *MissingEnvDetector) TryDetect(issue types.Issue) (types.Plan, bool) {
	if issue.Reason != types.ReasonCrashLoopBackOff {
		return types.Plan{}, false
	}
	env := missingEnvVars(issue.LogExcerpt)
	if len(env) == 0 {
		return types.Plan{}, false
	}

	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)

	return types.Plan{
		Steps: []types.Step{{
			Action: types.ActionUpdateEnv,
			Params: types.ActionParams{Env: env},
			Rationale: fmt.Sprintf("logs report missing environment variables: %s",
				strings.Join(names, ", ")),
		}},
	}, true
}

// missingEnvVars collects variables the logs report as empty, but only when
// the excerpt also carries an explicit missing-variable error marker; bare
// empty echoes without the marker are not acted on.
func missingEnvVars(lines []string) map[string]string {
	marker := false
	for _, line := range lines {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "missing") && strings.Contains(lower, "environment variable") {
			marker = true
			break
		}
	}
	if !marker {
		return nil
	}

	env := make(map[string]string)
	for _, line := range lines {
		m := emptyEnvLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		name := m[1]
		if logLevelWords[name] {
			continue
		}
		if value, ok := defaultFor(name); ok {
			env[name] = value
		}
	}
	if len(env) == 0 {
		return nil
	}
	return env
}

func defaultFor(name string) (string, bool) {
	for _, rule := range envDefaults {
		if strings.HasSuffix(name, rule.suffix) {
			return rule.value, true
		}
	}
	return "", false
}
