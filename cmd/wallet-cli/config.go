/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// config is the optional YAML file layered under the CLI flags.
type config struct {
	Endpoint       string   `yaml:"endpoint"`
	ProfileMarkers []string `yaml:"profileMarkers"`
}

func loadConfig(path string) (*config, error) {
	cfg := &config{}

	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}
