package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	// Listen 北向 BiDi WebSocket 监听地址
	Listen string `yaml:"listen"`

	// DevToolsURL 浏览器 DevTools HTTP 端点
	DevToolsURL string `yaml:"devToolsURL"`

	Mapper struct {
		AcceptInsecureCerts     bool   `yaml:"acceptInsecureCerts"`
		UnhandledPromptBehavior string `yaml:"unhandledPromptBehavior"`
		IdleTimeoutMS           int    `yaml:"idleTimeoutMS"`
	} `yaml:"mapper"`

	Sqlite struct {
		Dsn    string `yaml:"dsn"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`

	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
		File   string   `yaml:"file"`
	} `yaml:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	c := &Config{
		Version:     "1.0.0",
		Listen:      "127.0.0.1:8080",
		DevToolsURL: "http://127.0.0.1:9222",
	}
	c.Mapper.UnhandledPromptBehavior = "default"
	c.Sqlite.Dsn = ":memory:"
	c.Sqlite.Prefix = "bidimapper_"
	c.Log.Level = "info"
	c.Log.Writer = []string{"console"}
	return c
}

// Load 从 yaml 文件加载配置，path 为空时返回默认配置
func Load(path string) (*Config, error) {
	c := NewConfig()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}
