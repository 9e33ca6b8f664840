package compose

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// File is the subset of a compose file the CLI inspects.
type File struct {
	Services   map[string]Service `yaml:"services"`
	VolumeDefs map[string]any     `yaml:"volumes"`
}

type Service struct {
	Image         string   `yaml:"image"`
	ContainerName string   `yaml:"container_name"`
	Profiles      []string `yaml:"profiles"`
	Ports         []any    `yaml:"ports"`
}

// LoadFile parses the compose file at path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read compose file: %w", err)
	}
	return Parse(data)
}

// Parse decodes compose file contents.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse compose file: %w", err)
	}
	return &f, nil
}

// Profiles returns every profile referenced by a service, sorted.
func (f *File) Profiles() []string {
	seen := make(map[string]bool)
	var profiles []string
	for _, s := range f.Services {
		for _, p := range s.Profiles {
			if !seen[p] {
				seen[p] = true
				profiles = append(profiles, p)
			}
		}
	}
	sort.Strings(profiles)
	return profiles
}

// Volumes returns the named top-level volumes, sorted.
func (f *File) Volumes() []string {
	volumes := make([]string, 0, len(f.VolumeDefs))
	for name := range f.VolumeDefs {
		volumes = append(volumes, name)
	}
	sort.Strings(volumes)
	return volumes
}

// HostPorts returns the host ports published by services enabled under
// profiles. Services without profiles are always enabled. Variables in port
// definitions are resolved from env.
func (f *File) HostPorts(profiles []string, env map[string]string) ([]uint32, error) {
	enabled := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		enabled[p] = true
	}

	seen := make(map[uint32]bool)
	var ports []uint32
	names := make([]string, 0, len(f.Services))
	for name := range f.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s := f.Services[name]
		if !s.activeFor(enabled) {
			continue
		}
		for _, raw := range s.Ports {
			published, err := publishedPorts(raw, env)
			if err != nil {
				return nil, fmt.Errorf("service %s: %w", name, err)
			}
			for _, p := range published {
				if !seen[p] {
					seen[p] = true
					ports = append(ports, p)
				}
			}
		}
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports, nil
}

func (s Service) activeFor(enabled map[string]bool) bool {
	if len(s.Profiles) == 0 {
		return true
	}
	for _, p := range s.Profiles {
		if enabled[p] {
			return true
		}
	}
	return false
}

// publishedPorts handles both the short ("[ip:]host:container[/proto]") and
// the long ({published: n}) port syntax.
func publishedPorts(raw any, env map[string]string) ([]uint32, error) {
	switch v := raw.(type) {
	case map[string]any:
		published, ok := v["published"]
		if !ok {
			return nil, nil
		}
		return parseRange(interpolate(fmt.Sprint(published), env))
	case string:
		return shortSyntax(interpolate(v, env))
	default:
		// A bare number publishes the container port on a random host port.
		return nil, nil
	}
}

func shortSyntax(mapping string) ([]uint32, error) {
	if i := strings.Index(mapping, "/"); i >= 0 {
		mapping = mapping[:i]
	}
	parts := strings.Split(mapping, ":")
	if len(parts) < 2 {
		return nil, nil
	}
	host := parts[len(parts)-2]
	if host == "" {
		return nil, nil
	}
	return parseRange(host)
}

func parseRange(s string) ([]uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	lo, hi, isRange := strings.Cut(s, "-")
	start, err := strconv.ParseUint(lo, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid host port %q", s)
	}
	end := start
	if isRange {
		end, err = strconv.ParseUint(hi, 10, 16)
		if err != nil || end < start {
			return nil, fmt.Errorf("invalid host port range %q", s)
		}
	}
	ports := make([]uint32, 0, end-start+1)
	for p := start; p <= end; p++ {
		ports = append(ports, uint32(p))
	}
	return ports, nil
}

// interpolate resolves ${VAR}, ${VAR:-default} and ${VAR-default}.
func interpolate(s string, env map[string]string) string {
	return os.Expand(s, func(key string) string {
		name, def, hasDefault := strings.Cut(key, ":-")
		if hasDefault {
			if v := env[name]; v != "" {
				return v
			}
			return def
		}
		name, def, hasDefault = strings.Cut(key, "-")
		if v, ok := env[name]; ok {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	})
}
