package deploy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// buildEnv layers the process environment, the manifest env file and the
// configuration environment, later layers winning. It returns both the
// KEY=VALUE list handed to compose and the merged map.
func buildEnv(environ []string, envFilePath string, cfg *Configuration) ([]string, map[string]string, error) {
	merged := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k != "" {
			merged[k] = v
		}
	}

	fileEnv, err := godotenv.Read(envFilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read env file %s: %w", envFilePath, err)
	}
	for k, v := range fileEnv {
		merged[k] = v
	}

	for k, v := range cfg.Environment {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+merged[k])
	}
	return env, merged, nil
}
