package common

// KeysDirConfig contains configuration for key/value file loading.
// Each TOML file in the directory has [section-name] entries with 'value'
// and optional 'description' fields; sections become KV store entries.
type KeysDirConfig struct {
	// Dir is the directory containing key/value files in TOML format
	// Default: ./keys
	Dir string `toml:"dir"`
}
