package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"freightdesk/internal/app/widget"
)

// Config is the deskchat settings file, ~/.freightdesk/config.toml.
type Config struct {
	Server ConfigServer `toml:"server"`
	User   ConfigUser   `toml:"user"`
	Widget ConfigWidget `toml:"widget"`
}

type ConfigServer struct {
	URL     string `toml:"url"`
	Timeout string `toml:"timeout,omitempty"`
}

type ConfigUser struct {
	ID   string `toml:"id"`
	Role string `toml:"role,omitempty"`
	Name string `toml:"name,omitempty"`
}

// ConfigWidget holds the widget timing knobs as duration strings ("5s").
type ConfigWidget struct {
	DurableWindow   string `toml:"durable_window,omitempty"`
	BroadcastWindow string `toml:"broadcast_window,omitempty"`
	PollInterval    string `toml:"poll_interval,omitempty"`
	FallbackDelay   string `toml:"fallback_delay,omitempty"`
	PublishTimeout  string `toml:"publish_timeout,omitempty"`
}

const defaultServerURL = "http://localhost:8080"

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".freightdesk", "config.toml"), nil
}

// loadConfig reads path. A missing file yields the zero Config.
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return &cfg, nil
}

func saveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

// setConfigValue sets a field by dotted key, e.g. "user.id".
func setConfigValue(cfg *Config, key, value string) error {
	section, field, ok := strings.Cut(key, ".")
	if !ok {
		return fmt.Errorf("key must use dot notation: section.field (e.g. user.id)")
	}
	switch section {
	case "server":
		switch field {
		case "url":
			cfg.Server.URL = value
		case "timeout":
			if _, err := time.ParseDuration(value); err != nil {
				return fmt.Errorf("server.timeout: %w", err)
			}
			cfg.Server.Timeout = value
		default:
			return fmt.Errorf("unknown field %q in section [server]", field)
		}
	case "user":
		switch field {
		case "id":
			cfg.User.ID = value
		case "role":
			cfg.User.Role = value
		case "name":
			cfg.User.Name = value
		default:
			return fmt.Errorf("unknown field %q in section [user]", field)
		}
	case "widget":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("widget.%s: %w", field, err)
		}
		switch field {
		case "durable_window":
			cfg.Widget.DurableWindow = value
		case "broadcast_window":
			cfg.Widget.BroadcastWindow = value
		case "poll_interval":
			cfg.Widget.PollInterval = value
		case "fallback_delay":
			cfg.Widget.FallbackDelay = value
		case "publish_timeout":
			cfg.Widget.PublishTimeout = value
		default:
			return fmt.Errorf("unknown field %q in section [widget]", field)
		}
	default:
		return fmt.Errorf("unknown config section %q (valid: server, user, widget)", section)
	}
	return nil
}

// widgetConfig resolves the widget knobs. WIDGET_* environment variables win
// over the file; unset values keep the widget defaults.
func widgetConfig(cfg ConfigWidget, getenv func(string) string) (widget.Config, error) {
	var out widget.Config
	fields := []struct {
		env  string
		file string
		dst  *time.Duration
	}{
		{"WIDGET_DURABLE_WINDOW", cfg.DurableWindow, &out.Tolerance.Durable},
		{"WIDGET_BROADCAST_WINDOW", cfg.BroadcastWindow, &out.Tolerance.Broadcast},
		{"WIDGET_POLL_INTERVAL", cfg.PollInterval, &out.PollInterval},
		{"WIDGET_FALLBACK_DELAY", cfg.FallbackDelay, &out.FallbackDelay},
		{"WIDGET_PUBLISH_TIMEOUT", cfg.PublishTimeout, &out.PublishTimeout},
	}
	for _, f := range fields {
		raw := strings.TrimSpace(getenv(f.env))
		if raw == "" {
			raw = strings.TrimSpace(f.file)
		}
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return widget.Config{}, fmt.Errorf("invalid %s: %w", f.env, err)
		}
		*f.dst = d
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage deskchat configuration",
	Long:  "View or modify the deskchat configuration stored in ~/.freightdesk/config.toml.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "No configuration file found. Run 'deskchat config set user.id <id>' to create one.")
				return nil
			}
			return fmt.Errorf("cannot read config file: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value using dot notation.\nExample: deskchat config set server.url https://chat.freightdesk.example",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		cfg, err := loadConfig(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := setConfigValue(cfg, key, value); err != nil {
			return err
		}
		if err := saveConfig(path, cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	},
}
