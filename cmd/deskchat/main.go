package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"freightdesk/internal/domain/chat"
	"freightdesk/internal/infra/api"
	"freightdesk/internal/infra/obs"
)

var (
	flagConfig   string
	flagServer   string
	flagUser     string
	flagRole     string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "deskchat",
	Short:         "Freight desk admin chat in the terminal",
	Long:          "Chat with carriers and other admins from the terminal.\nSettings live in ~/.freightdesk/config.toml; flags override them.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default ~/.freightdesk/config.toml)")
	pf.StringVar(&flagServer, "server", "", "chatd base URL")
	pf.StringVar(&flagUser, "user", "", "acting user id")
	pf.StringVar(&flagRole, "role", "", "acting user role (admin|carrier)")
	pf.StringVar(&flagLogLevel, "log-level", "warn", "debug|info|warn|error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func resolveConfigPath() (string, error) {
	if flagConfig != "" {
		return flagConfig, nil
	}
	return defaultConfigPath()
}

// session is what every chat command needs: the merged settings, the acting
// user and a REST client for chatd.
type session struct {
	cfg    *Config
	self   chat.Participant
	name   string
	server string
	client *api.Client
	logger *slog.Logger
}

func newSession(cmd *cobra.Command) (*session, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, logger: obs.NewLoggerTo(cmd.ErrOrStderr(), "cli", flagLogLevel)}

	s.server = firstNonEmpty(flagServer, cfg.Server.URL, defaultServerURL)
	id := firstNonEmpty(flagUser, cfg.User.ID)
	if id == "" {
		return nil, fmt.Errorf("no user configured: pass --user or run 'deskchat config set user.id <id>'")
	}
	s.self = chat.Participant{ID: id, Role: chat.ParseRole(firstNonEmpty(flagRole, cfg.User.Role))}
	s.name = firstNonEmpty(cfg.User.Name, id)

	opts := []api.Option{api.WithLogger(s.logger)}
	if cfg.Server.Timeout != "" {
		d, err := time.ParseDuration(cfg.Server.Timeout)
		if err != nil {
			return nil, fmt.Errorf("server.timeout: %w", err)
		}
		opts = append(opts, api.WithTimeout(d))
	}
	s.client = api.NewClient(s.server, s.self, opts...)
	return s, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
