// internal/workers/outing/resolve-place-to-map/config.go
package resolveplace

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
