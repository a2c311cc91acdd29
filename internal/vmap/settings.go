package vmap

import "maps"

// Per-map disable flags.
const (
	DisableAreaFlag     uint32 = 1 << 0
	DisableHeight       uint32 = 1 << 1
	DisableLOS          uint32 = 1 << 2
	DisableLiquidStatus uint32 = 1 << 3
)

// Settings are the global query switches.
type Settings struct {
	EnableLOS        bool
	EnableHeight     bool
	EnableMapLoading bool
}

func DefaultSettings() Settings {
	return Settings{EnableLOS: true, EnableHeight: true, EnableMapLoading: true}
}

// Disables maps a map id to its disable flags.
type Disables map[uint32]uint32

// Settings returns the current switches.
func (m *Manager) Settings() Settings {
	return *m.settings.Load()
}

// SetSettings replaces the switches for subsequent queries.
func (m *Manager) SetSettings(s Settings) {
	m.settings.Store(&s)
}

// SetDisables replaces the per-map disable set. The map is copied.
func (m *Manager) SetDisables(d Disables) {
	c := maps.Clone(d)
	if c == nil {
		c = Disables{}
	}
	m.disables.Store(&c)
}

// Disables returns a copy of the per-map disable set.
func (m *Manager) Disables() Disables {
	return maps.Clone(*m.disables.Load())
}

// IsDisabled reports whether flag is disabled for mapID.
func (m *Manager) IsDisabled(mapID uint32, flag uint32) bool {
	return (*m.disables.Load())[mapID]&flag != 0
}
