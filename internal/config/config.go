// Package config loads and persists the capture tool's configuration:
// a yaml file plus DUPCAP_-prefixed environment overrides.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

type Config struct {
	// Output selects the capture source by index; -1 means primary.
	Output int `mapstructure:"output"`

	// TimeoutMs is the per-capture acquisition budget in milliseconds.
	TimeoutMs int `mapstructure:"timeout_ms"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Streaming.
	ListenAddr  string  `mapstructure:"listen_addr"`
	Quality     int     `mapstructure:"quality"`
	ScaleFactor float64 `mapstructure:"scale_factor"`
	MaxFPS      int     `mapstructure:"max_fps"`
}

func Default() *Config {
	return &Config{
		Output:      -1,
		TimeoutMs:   300,
		LogLevel:    "info",
		LogFormat:   "text",
		ListenAddr:  "127.0.0.1:8555",
		Quality:     80,
		ScaleFactor: 1.0,
		MaxFPS:      30,
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("dupcap")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("DUPCAP")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("output", cfg.Output)
	viper.Set("timeout_ms", cfg.TimeoutMs)
	viper.Set("log_level", cfg.LogLevel)
	viper.Set("log_format", cfg.LogFormat)
	viper.Set("listen_addr", cfg.ListenAddr)
	viper.Set("quality", cfg.Quality)
	viper.Set("scale_factor", cfg.ScaleFactor)
	viper.Set("max_fps", cfg.MaxFPS)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "dupcap.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	return viper.WriteConfigAs(cfgPath)
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "dupcap")
	case "darwin":
		return "/Library/Application Support/dupcap"
	default:
		return "/etc/dupcap"
	}
}
