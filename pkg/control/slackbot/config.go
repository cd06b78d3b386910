package slackbot

import (
	"strings"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
)

const DefaultSlashCommand = "/supervisor"

type Config struct {
	Enabled       *bool    `yaml:"enabled,omitempty"`
	BotToken      string   `yaml:"bot_token,omitempty"`
	AppToken      string   `yaml:"app_token,omitempty"`
	SlashCommand  string   `yaml:"slash_command,omitempty"`
	AllowedUsers  []string `yaml:"allowed_users,omitempty"`
	AdminUsers    []string `yaml:"admin_users,omitempty"`
	NotifyChannel string   `yaml:"notify_channel,omitempty"`
	Debug         bool     `yaml:"debug,omitempty"`
}

func (c Config) IsEnabled() bool {
	return c.Enabled != nil && *c.Enabled
}

// ValidateConfig checks an enabled configuration; a disabled one is always valid.
func ValidateConfig(c Config) error {
	if !c.IsEnabled() {
		return nil
	}
	if c.BotToken == "" {
		return errors.NewValidationError("slack bot token is required", nil)
	}
	if !strings.HasPrefix(c.BotToken, "xoxb-") {
		return errors.NewValidationError("slack bot token must start with xoxb-", nil)
	}
	if c.AppToken == "" {
		return errors.NewValidationError("slack app token is required for Socket Mode", nil)
	}
	if !strings.HasPrefix(c.AppToken, "xapp-") {
		return errors.NewValidationError("slack app token must start with xapp-", nil)
	}
	if c.SlashCommand != "" && !strings.HasPrefix(c.SlashCommand, "/") {
		return errors.NewValidationError("slash command must start with /", nil)
	}
	if len(c.AllowedUsers) == 0 {
		return errors.NewValidationError("at least one allowed slack user is required", nil)
	}
	return nil
}
