package jobs

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

type registryFile struct {
	Professions []professionEntry `toml:"profession"`
}

type professionEntry struct {
	ID      string       `toml:"id"`
	Name    string       `toml:"name"`
	Emoji   string       `toml:"emoji"`
	CanFine bool         `toml:"can_fine"`
	Trap    bool         `toml:"trap"`
	Levels  []levelEntry `toml:"level"`
}

type levelEntry struct {
	Title           string   `toml:"title"`
	SalaryMin       int64    `toml:"salary_min"`
	SalaryMax       int64    `toml:"salary_max"`
	Cooldown        duration `toml:"cooldown"`
	PromotionChance float64  `toml:"promotion_chance"`
	GuaranteedAfter int      `toml:"guaranteed_after"`
}

type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

// LoadRegistryFile reads a TOML profession table that replaces the built-in
// one entirely:
//
//	[[profession]]
//	id = "interpol"
//	can_fine = true
//	  [[profession.level]]
//	  title = "Trainee"
//	  salary_min = 10
//	  salary_max = 20
//	  cooldown = "1h"
//	  promotion_chance = 0.05
//	  guaranteed_after = 20
func LoadRegistryFile(path string) (*Registry, error) {
	var raw registryFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrConfiguration, path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: %s: unknown key %q", ErrConfiguration, path, undecoded[0].String())
	}
	return NewRegistry(raw.descriptors())
}

func (f registryFile) descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(f.Professions))
	for _, p := range f.Professions {
		d := Descriptor{
			ID:      Profession(p.ID),
			Name:    p.Name,
			Emoji:   p.Emoji,
			CanFine: p.CanFine,
			Trap:    p.Trap,
			Levels:  make([]LevelSpec, 0, len(p.Levels)),
		}
		if d.Name == "" {
			d.Name = p.ID
		}
		for _, l := range p.Levels {
			d.Levels = append(d.Levels, LevelSpec{
				Title:           l.Title,
				Salary:          Range{Min: l.SalaryMin, Max: l.SalaryMax},
				Cooldown:        time.Duration(l.Cooldown),
				PromotionChance: l.PromotionChance,
				GuaranteedAfter: l.GuaranteedAfter,
			})
		}
		out = append(out, d)
	}
	return out
}
