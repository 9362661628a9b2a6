// internal/config/environment.go
package config

import (
	"os"
	"strconv"
	"strings"
)

// EnvPrefix starts every environment override.
//
//	HP3478A_BRIDGE_LOG_LEVEL
//	HP3478A_BRIDGE_API_LISTEN
//	HP3478A_BRIDGE_LINK_<ID>_PORT
//	HP3478A_BRIDGE_LINK_<ID>_SIMULATE
//	HP3478A_BRIDGE_LINK_<ID>_DEBUG
//
// <ID> is the link id upper-cased with '-' and '.' replaced by '_'.
const EnvPrefix = "HP3478A_BRIDGE_"

type environment struct {
	env map[string]string
}

// NewEnvironment snapshots the process environment.
func NewEnvironment() *environment {
	return newEnvironment(os.Environ())
}

func newEnvironment(kvs []string) *environment {
	e := &environment{env: make(map[string]string, len(kvs))}
	for _, kv := range kvs {
		i := strings.IndexByte(kv, '=')
		if i <= 0 || i == len(kv)-1 {
			continue
		}
		if strings.HasPrefix(kv[:i], EnvPrefix) {
			e.env[kv[:i]] = kv[i+1:]
		}
	}
	return e
}

// OverrideFromEnvironment replaces configured values with environment
// values where a matching variable is set.
func (e *environment) OverrideFromEnvironment(cfg *Config) {
	if cfg == nil {
		return
	}

	if v, ok := e.env[EnvPrefix+"LOG_LEVEL"]; ok {
		cfg.Bridge.Log.Level = v
	}
	if v, ok := e.env[EnvPrefix+"API_LISTEN"]; ok {
		cfg.Bridge.API.Listen = v
	}

	for i := range cfg.Bridge.Links {
		l := &cfg.Bridge.Links[i]
		key := EnvPrefix + "LINK_" + envKey(l.ID) + "_"

		if v, ok := e.env[key+"PORT"]; ok {
			l.Port = v
		}
		if v, ok := e.env[key+"SIMULATE"]; ok {
			if b, err := strconv.ParseBool(v); err == nil {
				l.Simulate = b
			}
		}
		if v, ok := e.env[key+"DEBUG"]; ok {
			if b, err := strconv.ParseBool(v); err == nil {
				l.Debug = b
			}
		}
	}
}

func envKey(id string) string {
	return strings.NewReplacer("-", "_", ".", "_").Replace(strings.ToUpper(id))
}
