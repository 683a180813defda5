package cmd

import (
	"fmt"

	"github.com/lepinkainen/shelf/internal/settings"
)

// SettingsCmd groups the settings commands
type SettingsCmd struct {
	List SettingsListCmd `cmd:"" help:"Show every setting"`
	Get  SettingsGetCmd  `cmd:"" help:"Show one setting"`
	Set  SettingsSetCmd  `cmd:"" help:"Change one setting"`
}

// SettingsListCmd prints all settings
type SettingsListCmd struct {
	ShowSecrets bool `help:"Print API keys in full"`
}

func (l *SettingsListCmd) Run() error {
	store, err := openSettings()
	if err != nil {
		return err
	}
	snap := store.Snapshot()
	for _, k := range settings.Keys {
		value := snap.Value(k)
		if k.Secret() && !l.ShowSecrets {
			value = mask(value)
		}
		_, _ = fmt.Fprintf(out, "%-22s %s\n", k, value)
	}
	return nil
}

// mask hides all but the last four characters of a secret.
func mask(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

// SettingsGetCmd prints one setting
type SettingsGetCmd struct {
	Key string `arg:"" help:"Setting key, e.g. resolver.max_results"`
}

func (g *SettingsGetCmd) Run() error {
	key, err := settings.ParseKey(g.Key)
	if err != nil {
		return err
	}
	store, err := openSettings()
	if err != nil {
		return err
	}
	value, err := store.Get(key)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, value)
	return nil
}

// SettingsSetCmd changes one setting
type SettingsSetCmd struct {
	Key   string `arg:"" help:"Setting key"`
	Value string `arg:"" help:"New value; lists are comma separated"`
}

func (s *SettingsSetCmd) Run() error {
	key, err := settings.ParseKey(s.Key)
	if err != nil {
		return err
	}
	store, err := openSettings()
	if err != nil {
		return err
	}
	if err := store.Set(key, s.Value); err != nil {
		return err
	}
	value, _ := store.Get(key)
	if key.Secret() {
		value = mask(value)
	}
	_, _ = fmt.Fprintf(out, "%s = %s (saved to %s)\n", key, value, store.Path())
	return nil
}
