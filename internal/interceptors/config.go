package interceptors

import (
	"fmt"
	"log/slog"
)

// GetProfileConfig returns [http.interceptors.<interceptor>.profiles.<profile>]
// from the decoded interceptors table.
func GetProfileConfig(all map[string]map[string]any, interceptor, profile string) (map[string]any, error) {
	ic, ok := all[interceptor]
	if !ok {
		return nil, fmt.Errorf("no %s interceptor configured, cannot find profile %q", interceptor, profile)
	}
	profiles, ok := ic["profiles"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s interceptor has no profiles table, cannot find profile %q", interceptor, profile)
	}
	p, ok := profiles[profile]
	if !ok {
		return nil, fmt.Errorf("%s profile %q not found", interceptor, profile)
	}
	m, ok := p.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s profile %q is not a table", interceptor, profile)
	}
	return m, nil
}

// Build constructs the registered interceptor for the named profile.
func Build(all map[string]map[string]any, interceptor, profile string, log *slog.Logger) (Middleware, error) {
	conf, err := GetProfileConfig(all, interceptor, profile)
	if err != nil {
		return nil, err
	}
	newFn, ok := Get(interceptor)
	if !ok {
		return nil, fmt.Errorf("interceptor %q not registered", interceptor)
	}
	mw, err := newFn(conf, log)
	if err != nil {
		return nil, fmt.Errorf("%s profile %q: %w", interceptor, profile, err)
	}
	return mw, nil
}
