package logging

import "time"

type Config struct {
	EnabledSinks     []string
	BufferSize       int
	MinimumSeverity  Severity
	Fields           map[string]any
	JSON             JSONConfig
	DropWarnInterval time.Duration
}

type JSONConfig struct {
	FilePath      string
	FlushInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		EnabledSinks:     []string{"console"},
		BufferSize:       256,
		MinimumSeverity:  SeverityInfo,
		DropWarnInterval: 5 * time.Second,
		JSON: JSONConfig{
			FlushInterval: time.Second,
		},
	}
}

func (c Config) HasSink(name string) bool {
	for _, s := range c.EnabledSinks {
		if s == name {
			return true
		}
	}
	return false
}

func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	cloned := make(map[string]any, len(c.Fields))
	for k, v := range c.Fields {
		cloned[k] = v
	}
	return cloned
}

// ParseSeverity maps a config string onto a Severity, defaulting to info.
func ParseSeverity(name string) Severity {
	switch name {
	case "debug":
		return SeverityDebug
	case "warn":
		return SeverityWarn
	case "error":
		return SeverityError
	default:
		return SeverityInfo
	}
}

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}
