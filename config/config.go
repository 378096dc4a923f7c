// Package config loads server configuration from backoffice.yaml with
// environment-variable overrides for secrets.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const fileName = "backoffice.yaml"

type Config struct {
	// Port is the HTTP port the API server listens on.
	Port int `yaml:"port"`

	// TableName is the DynamoDB table all records live in.
	TableName string `yaml:"tableName"`

	// RestaurantID scopes expense and sale records.
	RestaurantID string `yaml:"restaurantId"`

	// DataDir is where BadgerDB stores data when running locally.
	DataDir string `yaml:"dataDir"`

	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Admin    AdminConfig    `yaml:"admin"`
}

type WhatsAppConfig struct {
	AccessToken   string `yaml:"accessToken"`
	PhoneNumberID string `yaml:"phoneNumberId"`
}

type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Load reads backoffice.yaml, searching from the current directory up
// to the filesystem root, then applies defaults and environment
// overrides. A missing file is not an error; the defaults plus
// environment are a complete configuration.
func Load() (Config, error) {
	var cfg Config

	if path := findConfigFile(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.TableName == "" {
		c.TableName = "MrSandwichData"
	}
	if c.RestaurantID == "" {
		c.RestaurantID = "mr-sandwich"
	}
	if c.DataDir == "" {
		c.DataDir = ".backoffice"
	}
}

// applyEnv lets secrets come from the environment instead of the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("WHATSAPP_ACCESS_TOKEN"); v != "" {
		c.WhatsApp.AccessToken = v
	}
	if v := os.Getenv("WHATSAPP_PHONE_NUMBER_ID"); v != "" {
		c.WhatsApp.PhoneNumberID = v
	}
	if v := os.Getenv("ADMIN_USERNAME"); v != "" {
		c.Admin.Username = v
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		c.Admin.Password = v
	}
	if v := os.Getenv("TABLE_NAME"); v != "" {
		c.TableName = v
	}
}

func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, fileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return ""
		}
		dir = parent
	}
}
