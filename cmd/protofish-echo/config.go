package main

import (
	"encoding/json"
	"errors"
	"os"
)

// EchoConfig configures the protofish-echo example server/client, in the
// style of the teacher's server/config.LoadOrCreate.
type EchoConfig struct {
	// Listen is the server's HOST:PORT.
	Listen string `json:"listen"`
	// PemPath is where the server's self-signed TLS certificate lives.
	// Generated on first run if missing.
	PemPath string `json:"pem_path"`
	// BenchmarkBytes is how much data -mode=bench-client transfers.
	BenchmarkBytes uint64 `json:"benchmark_bytes"`
}

// Default is the default protofish-echo configuration.
var Default = &EchoConfig{
	Listen:         "127.0.0.1:20380",
	PemPath:        "protofish-echo.pem",
	BenchmarkBytes: 16 << 20,
}

// LoadOrCreate loads the config at path, writing Default to it first if it
// does not exist yet.
func LoadOrCreate(path string) (*EchoConfig, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			data, err = json.MarshalIndent(Default, "", "  ")
			if err != nil {
				return nil, err
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return nil, err
			}
			return Default, nil
		}
		return nil, err
	}

	var cfg EchoConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Listen == "" {
		return nil, errors.New("listen is required")
	}
	if cfg.PemPath == "" {
		return nil, errors.New("pem_path is required")
	}
	if cfg.BenchmarkBytes == 0 {
		cfg.BenchmarkBytes = Default.BenchmarkBytes
	}
	return &cfg, nil
}
