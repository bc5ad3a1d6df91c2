package config

import "fmt"

// Validate enforces the startup uniqueness invariant: no two server
// blocks may share the same (bind address, port, server_name) triple.
// A block with no server_name entries is treated as the default for
// that (address, port) and conflicts with any other default.
func Validate(servers []*ServerConfig) error {
	type key struct {
		addr string
		port int
		name string
	}
	seen := map[key]*ServerConfig{}

	for _, sc := range servers {
		names := sc.ServerNames
		if len(names) == 0 {
			names = []string{""}
		}
		for _, port := range sc.Ports {
			for _, name := range names {
				k := key{addr: sc.BindAddress, port: port, name: name}
				if prev, ok := seen[k]; ok {
					return fmt.Errorf(
						"config: %s:%d and %s:%d both declare listen %s:%d with server_name %q",
						prev.SourceFile, prev.SourceLine, sc.SourceFile, sc.SourceLine,
						sc.BindAddress, port, name,
					)
				}
				seen[k] = sc
			}
		}
	}
	return nil
}
