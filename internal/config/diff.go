package config

import (
	"reflect"
	"sort"
	"strings"

	logx "bumpbot/pkg/logx"
)

// SummarizeConfigChange returns the changed sections, safe log attrs (never
// secrets) and the subset of sections that only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)
	restart := make([]string, 0, 2)

	// Discord session (never log the token)
	if oldCfg.Discord.Token != newCfg.Discord.Token ||
		strings.TrimSpace(oldCfg.Discord.ClientID) != strings.TrimSpace(newCfg.Discord.ClientID) ||
		strings.TrimSpace(oldCfg.Discord.GuildID) != strings.TrimSpace(newCfg.Discord.GuildID) {
		changed = append(changed, "discord")
		restart = append(restart, "discord")
		attrs = append(attrs,
			logx.Bool("discord.token_changed", oldCfg.Discord.Token != newCfg.Discord.Token),
			logx.String("discord.guild_id", strings.TrimSpace(newCfg.Discord.GuildID)),
		)
	}

	if oldCfg.OwnerID != newCfg.OwnerID {
		changed = append(changed, "owner")
		attrs = append(attrs, logx.Bool("owner.set", strings.TrimSpace(newCfg.OwnerID) != ""))
	}

	if !reflect.DeepEqual(oldCfg.AllowedBotIDs, newCfg.AllowedBotIDs) ||
		oldCfg.AllowedChannelID != newCfg.AllowedChannelID ||
		oldCfg.TriggerCommand() != newCfg.TriggerCommand() {
		changed = append(changed, "trigger")
		attrs = append(attrs,
			logx.Bool("trigger.allow_any_bot", newCfg.AllowedBotIDs == nil),
			logx.Int("trigger.allowed_bots", len(newCfg.AllowedBotIDs)),
			logx.String("trigger.command", newCfg.TriggerCommand()),
			logx.String("trigger.allowed_channel_id", newCfg.AllowedChannelID),
		)
	}

	if oldCfg.ChannelID != newCfg.ChannelID ||
		oldCfg.MentionRole != newCfg.MentionRole ||
		oldCfg.RoleID != newCfg.RoleID ||
		oldCfg.ShowButton != newCfg.ShowButton {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.String("notify.channel_id", newCfg.ChannelID),
			logx.Bool("notify.mention_role", newCfg.MentionRole),
			logx.Bool("notify.show_button", newCfg.ShowButton),
		)
	}

	if oldCfg.Language != newCfg.Language || !reflect.DeepEqual(oldCfg.Texts, newCfg.Texts) {
		changed = append(changed, "texts")
		langs := make([]string, 0, len(newCfg.Texts))
		for l := range newCfg.Texts {
			langs = append(langs, l)
		}
		sort.Strings(langs)
		attrs = append(attrs,
			logx.String("texts.language", newCfg.Language),
			logx.String("texts.langs", strings.Join(langs, ",")),
		)
	}

	if oldCfg.Reminder != newCfg.Reminder {
		changed = append(changed, "reminder")
		attrs = append(attrs,
			logx.String("reminder.delay", newCfg.Reminder.Delay),
			logx.String("reminder.test_delay", newCfg.Reminder.TestDelay),
			logx.String("reminder.recover_policy", newCfg.Reminder.RecoverPolicy),
			logx.String("reminder.reconcile", newCfg.Reminder.Reconcile),
		)
	}

	// Storage is opened once; a change needs a restart. DSN may hold a password.
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.discord_enabled", newCfg.Logging.Discord.Enabled),
		)
	}

	sort.Strings(changed)
	return changed, attrs, restart
}
