package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WatchLogLevel re-reads the config file on change and hands the new logger.level to apply.
// Everything else stays as loaded at startup.
func WatchLogLevel(v *viper.Viper, log *slog.Logger, apply func(level string) error) {
	if v == nil || apply == nil || v.ConfigFileUsed() == "" {
		return
	}
	if log == nil {
		log = slog.Default()
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		level := v.GetString("logger.level")
		if err := apply(level); err != nil {
			log.Warn("config reload: invalid log level", slog.String("level", level), slog.Any("error", err))
			return
		}

		log.Info("config reload: log level updated", slog.String("file", e.Name), slog.String("level", level))
	})
	v.WatchConfig()
}
