package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/segmentio/encoding/json"
	"gopkg.in/yaml.v3"
)

var ErrMissingCredential = errors.New("missing credential")

// CredentialError names the credential that failed validation.
type CredentialError struct {
	Key string
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("mqtt credential %s: %v", e.Key, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// MQTTCredentials is the broker identity loaded once at startup.
type MQTTCredentials struct {
	ClientID  string `json:"client_id" yaml:"client_id" toml:"client_id"`
	Host      string `json:"host" yaml:"host" toml:"host"`
	Port      string `json:"port" yaml:"port" toml:"port"`
	KeepAlive string `json:"keep_alive" yaml:"keep_alive" toml:"keep_alive"`
	Username  string `json:"username" yaml:"username" toml:"username"`
	Password  string `json:"password" yaml:"password" toml:"password"`
}

const (
	DefaultMQTTPort      = "1883"
	DefaultMQTTKeepAlive = 60 * time.Second
)

var credentialEnv = []struct {
	env   string
	field func(*MQTTCredentials) *string
}{
	{"MQTT_CLIENT_ID", func(c *MQTTCredentials) *string { return &c.ClientID }},
	{"MQTT_HOST", func(c *MQTTCredentials) *string { return &c.Host }},
	{"MQTT_PORT", func(c *MQTTCredentials) *string { return &c.Port }},
	{"MQTT_KEEP_ALIVE", func(c *MQTTCredentials) *string { return &c.KeepAlive }},
	{"MQTT_USERNAME", func(c *MQTTCredentials) *string { return &c.Username }},
	{"MQTT_PASSWORD", func(c *MQTTCredentials) *string { return &c.Password }},
}

// LoadCredentialsFile reads a credential store based on its extension.
// Supports: .yaml/.yml, .json, .toml
func LoadCredentialsFile(path string) (MQTTCredentials, error) {
	var creds MQTTCredentials
	if path == "" {
		return creds, fmt.Errorf("empty credentials path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return creds, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &creds)
	case ".json":
		err = json.Unmarshal(b, &creds)
	case ".toml":
		err = toml.Unmarshal(b, &creds)
	default:
		return creds, fmt.Errorf("unsupported credentials extension: %s", ext)
	}
	if err != nil {
		return creds, fmt.Errorf("parse %s: %w", path, err)
	}
	return creds, nil
}

// LoadMQTTCredentials merges the optional MQTT_CREDENTIALS_FILE with MQTT_* env overrides
// and validates the result.
func LoadMQTTCredentials() (MQTTCredentials, error) {
	var creds MQTTCredentials
	if path := String("MQTT_CREDENTIALS_FILE", ""); path != "" {
		c, err := LoadCredentialsFile(path)
		if err != nil {
			return creds, err
		}
		creds = c
	}
	for _, e := range credentialEnv {
		if v := String(e.env, ""); v != "" {
			*e.field(&creds) = v
		}
	}
	if err := creds.Validate(); err != nil {
		return creds, err
	}
	return creds, nil
}

// Validate fills defaults for port and keep-alive and checks every value.
func (c *MQTTCredentials) Validate() error {
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.Host = strings.TrimSpace(c.Host)
	c.Port = strings.TrimSpace(c.Port)
	c.KeepAlive = strings.TrimSpace(c.KeepAlive)
	c.Username = strings.TrimSpace(c.Username)

	required := []struct {
		key   string
		value string
	}{
		{"client_id", c.ClientID},
		{"host", c.Host},
		{"username", c.Username},
		{"password", c.Password},
	}
	for _, r := range required {
		if r.value == "" {
			return &CredentialError{Key: r.key, Err: ErrMissingCredential}
		}
	}

	if c.Port == "" {
		c.Port = DefaultMQTTPort
	}
	if err := validPort(c.Port); err != nil {
		return &CredentialError{Key: "port", Err: err}
	}
	if c.KeepAlive == "" {
		c.KeepAlive = strconv.Itoa(int(DefaultMQTTKeepAlive / time.Second))
	}
	if d, err := parseDuration(c.KeepAlive); err != nil || d <= 0 {
		return &CredentialError{Key: "keep_alive", Err: fmt.Errorf("invalid keep-alive %q", c.KeepAlive)}
	}
	return nil
}

// KeepAliveDuration is only meaningful after Validate succeeded.
func (c MQTTCredentials) KeepAliveDuration() time.Duration {
	d, err := parseDuration(c.KeepAlive)
	if err != nil || d <= 0 {
		return DefaultMQTTKeepAlive
	}
	return d
}

func (c MQTTCredentials) PortNumber() int {
	p, _ := strconv.Atoi(c.Port)
	return p
}
