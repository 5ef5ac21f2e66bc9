package logger

// Config holds logger settings
type Config struct {
	Level string `json:"level" yaml:"level"` // debug, info, warn, error (default: info)
}

// SetDefaults fills zero-value fields
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}
