package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	SSH     SSHConfig     `yaml:"ssh"`
	Control ControlConfig `yaml:"control"`
	Devices DevicesConfig `yaml:"devices"`
	Log     LogConfig     `yaml:"log"`
}

type EngineConfig struct {
	// Mode selects how the engine is reached: "remote" controls an engine on
	// another host, "local" spawns and controls one on this host.
	Mode       string `yaml:"mode"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	ConfigPath string `yaml:"config_path"`
	Binary     string `yaml:"binary"`
}

type SSHConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Port     int    `yaml:"port"`
}

type ControlConfig struct {
	APIAddr        string `yaml:"api_addr"`
	AuthToken      string `yaml:"auth_token"`
	PollInterval   string `yaml:"poll_interval"`
	ConnectTimeout string `yaml:"connect_timeout"`
	RequestTimeout string `yaml:"request_timeout"`
}

type DevicesConfig struct {
	Capture   string `yaml:"capture"`
	Playback  string `yaml:"playback"`
	Channels  int    `yaml:"channels"`
	ChunkSize int    `yaml:"chunk_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Engine.Mode == "" {
		c.Engine.Mode = "remote"
	}
	if c.Engine.Host == "" {
		c.Engine.Host = "127.0.0.1"
	}
	if c.Engine.Port == 0 {
		c.Engine.Port = 1234
	}
	if c.Engine.ConfigPath == "" {
		c.Engine.ConfigPath = "/var/lib/camilladsp/active_config.yml"
	}
	if c.Engine.Binary == "" {
		c.Engine.Binary = "camilladsp"
	}
	if c.SSH.User == "" {
		c.SSH.User = "pi"
	}
	if c.SSH.Port == 0 {
		c.SSH.Port = 22
	}
	if c.Control.APIAddr == "" {
		c.Control.APIAddr = ":8090"
	}
	if c.Control.PollInterval == "" {
		c.Control.PollInterval = "2s"
	}
	if c.Control.ConnectTimeout == "" {
		c.Control.ConnectTimeout = "5s"
	}
	if c.Control.RequestTimeout == "" {
		c.Control.RequestTimeout = "5s"
	}
	if c.Devices.Channels == 0 {
		c.Devices.Channels = 2
	}
	if c.Devices.ChunkSize == 0 {
		c.Devices.ChunkSize = 1024
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}
