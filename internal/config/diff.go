package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	PersonaChanged         bool
	VoiceChanged           bool
	DefaultAvatarIDChanged bool
	NewDefaultAvatarID     string
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Persona.Voice != new.Persona.Voice {
		d.VoiceChanged = true
		d.PersonaChanged = true
	}
	if old.Persona.DefaultAvatarID != new.Persona.DefaultAvatarID {
		d.DefaultAvatarIDChanged = true
		d.NewDefaultAvatarID = new.Persona.DefaultAvatarID
		d.PersonaChanged = true
	}

	return d
}
