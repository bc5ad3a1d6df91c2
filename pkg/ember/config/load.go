package config

import "os"

// Load reads and parses the config file at path, then validates the
// result. This is the entry point cmd/emberd uses at startup.
func Load(path string) ([]*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	servers, err := Parse(string(data), path)
	if err != nil {
		return nil, err
	}
	if err := Validate(servers); err != nil {
		return nil, err
	}
	return servers, nil
}
