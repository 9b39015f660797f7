package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	NATS      NATSConfig      `yaml:"nats"`
	Function  FunctionConfig  `yaml:"function"`
	Processor ProcessorConfig `yaml:"processor"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type NATSConfig struct {
	URL           string        `yaml:"url"`
	SubjectIn     string        `yaml:"subject_in"`
	SubjectOut    string        `yaml:"subject_out"`
	QueueGroup    string        `yaml:"queue_group"`
	MaxReconnect  int           `yaml:"max_reconnect"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

type FunctionConfig struct {
	Name    string `yaml:"name"`    // Reported as processing_metadata.function_name
	Version string `yaml:"version"` // Reported as processing_metadata.function_version
}

type ProcessorConfig struct {
	Script string `yaml:"script"` // Optional JavaScript post-transform
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults
	if config.NATS.URL == "" {
		config.NATS.URL = "nats://localhost:4222"
	}
	if config.NATS.ReconnectWait == 0 {
		config.NATS.ReconnectWait = 2 * time.Second
	}
	if config.Function.Name == "" {
		config.Function.Name = "cdc-enrichment"
	}
	if config.Function.Version == "" {
		config.Function.Version = "1.0"
	}

	if config.NATS.SubjectIn == "" {
		return nil, fmt.Errorf("nats.subject_in is required")
	}
	if config.NATS.SubjectOut == "" {
		return nil, fmt.Errorf("nats.subject_out is required")
	}

	return &config, nil
}
