package config

// Source provides configuration on demand.
//
// Implementations must not cache: every Load reflects the configuration as
// it is at call time, so runtime changes (environment, file) are observed by
// the next caller.
type Source interface {
	Load() (*Config, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() (*Config, error)

// Load calls f.
func (f SourceFunc) Load() (*Config, error) {
	return f()
}

// FileSource loads configuration from a YAML file and the environment.
// An empty Path uses the default config location.
type FileSource struct {
	Path string
}

// Load re-reads the config file and environment.
func (s FileSource) Load() (*Config, error) {
	return LoadWithFile(s.Path)
}

// Static returns a Source that always yields a copy of cfg.
func Static(cfg *Config) Source {
	return SourceFunc(func() (*Config, error) {
		c := *cfg
		return &c, nil
	})
}

// WithOverrides wraps src and applies fn to every loaded configuration.
// It is used to layer command-line flags over file and environment values.
func WithOverrides(src Source, fn func(*Config)) Source {
	return SourceFunc(func() (*Config, error) {
		cfg, err := src.Load()
		if err != nil {
			return nil, err
		}
		fn(cfg)
		return cfg, nil
	})
}
