package runner

import (
	"os"
	"sort"
	"strings"
)

// BuildEnv returns the process environment overlaid with extra and the
// TICKWORK_* metadata variables, sorted by key.
func BuildEnv(extra map[string]string, jobName, trigger string) []string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	for k, v := range extra {
		env[k] = v
	}
	env["TICKWORK_JOB_NAME"] = jobName
	if trigger != "" {
		env["TICKWORK_TRIGGER"] = trigger
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
