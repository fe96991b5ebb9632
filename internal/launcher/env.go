package launcher

import (
	"strings"
)

// mergeEnv returns base with every key in set replaced or appended, in the
// order of keys.
func mergeEnv(base []string, keys []string, set map[string]string) []string {
	out := make([]string, 0, len(base)+len(keys))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := set[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	for _, key := range keys {
		out = append(out, key+"="+set[key])
	}
	return out
}

// lookupEnv returns the value of key in env.
func lookupEnv(env []string, key string) (string, bool) {
	for i := len(env) - 1; i >= 0; i-- {
		k, v, ok := strings.Cut(env[i], "=")
		if ok && k == key {
			return v, true
		}
	}
	return "", false
}
