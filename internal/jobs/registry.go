package jobs

import (
	"fmt"
	"strings"
	"time"
)

type Profession string

// Range is an inclusive amount range.
type Range struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

type LevelSpec struct {
	Title           string        `json:"title"`
	Salary          Range         `json:"salary"`
	Cooldown        time.Duration `json:"cooldown"`
	PromotionChance float64       `json:"promotion_chance"`
	// GuaranteedAfter is the work count that forces a promotion. Zero means
	// never, which is only valid on a plateau top level.
	GuaranteedAfter int `json:"guaranteed_after"`
}

type Descriptor struct {
	ID      Profession `json:"id"`
	Name    string     `json:"name"`
	Emoji   string     `json:"emoji"`
	CanFine bool       `json:"can_fine"`
	// Trap marks the fast-track profession: promoting past its top level
	// springs the trap instead of leveling up.
	Trap   bool        `json:"trap"`
	Levels []LevelSpec `json:"levels"`
}

func (d Descriptor) MaxLevel() int {
	return len(d.Levels)
}

// Registry is the immutable profession table. Build it once at startup and
// share the pointer.
type Registry struct {
	order     []Profession
	byID      map[Profession]Descriptor
	fining    Profession
	fastTrack Profession
}

func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	r := &Registry{byID: make(map[Profession]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		d.ID = Profession(strings.ToLower(strings.TrimSpace(string(d.ID))))
		if d.ID == "" {
			return nil, fmt.Errorf("%w: profession id is required", ErrConfiguration)
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate profession %q", ErrConfiguration, d.ID)
		}
		if err := validateDescriptor(d); err != nil {
			return nil, err
		}
		levels := make([]LevelSpec, len(d.Levels))
		copy(levels, d.Levels)
		d.Levels = levels
		if d.CanFine {
			if r.fining != "" {
				return nil, fmt.Errorf("%w: more than one fining profession (%q, %q)", ErrConfiguration, r.fining, d.ID)
			}
			r.fining = d.ID
		}
		if d.Trap {
			if r.fastTrack != "" {
				return nil, fmt.Errorf("%w: more than one fast-track profession (%q, %q)", ErrConfiguration, r.fastTrack, d.ID)
			}
			r.fastTrack = d.ID
		}
		r.order = append(r.order, d.ID)
		r.byID[d.ID] = d
	}
	if r.fining == "" {
		return nil, fmt.Errorf("%w: no fining profession configured", ErrConfiguration)
	}
	return r, nil
}

func validateDescriptor(d Descriptor) error {
	if len(d.Levels) == 0 {
		return &ConfigError{Profession: d.ID, Reason: "no levels"}
	}
	top := len(d.Levels)
	for i, lvl := range d.Levels {
		level := i + 1
		if lvl.Salary.Min < 0 || lvl.Salary.Max < lvl.Salary.Min || lvl.Salary.Max == 0 {
			return &ConfigError{Profession: d.ID, Level: level, Reason: fmt.Sprintf("invalid salary range %d-%d", lvl.Salary.Min, lvl.Salary.Max)}
		}
		if lvl.Cooldown <= 0 {
			return &ConfigError{Profession: d.ID, Level: level, Reason: "cooldown must be positive"}
		}
		if lvl.PromotionChance < 0 || lvl.PromotionChance > 1 {
			return &ConfigError{Profession: d.ID, Level: level, Reason: "promotion chance must be within [0,1]"}
		}
		if lvl.GuaranteedAfter < 0 {
			return &ConfigError{Profession: d.ID, Level: level, Reason: "guaranteed threshold must not be negative"}
		}
		if lvl.GuaranteedAfter == 0 && (level < top || d.Trap) {
			return &ConfigError{Profession: d.ID, Level: level, Reason: "guaranteed threshold required below the top level"}
		}
		if i == 0 {
			continue
		}
		prev := d.Levels[i-1]
		if lvl.PromotionChance > prev.PromotionChance {
			return &ConfigError{Profession: d.ID, Level: level, Reason: "promotion chance must not increase with level"}
		}
		if lvl.GuaranteedAfter != 0 && lvl.GuaranteedAfter < prev.GuaranteedAfter {
			return &ConfigError{Profession: d.ID, Level: level, Reason: "guaranteed threshold must not decrease with level"}
		}
	}
	return nil
}

func (r *Registry) Professions() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) Lookup(p Profession) (Descriptor, error) {
	d, ok := r.byID[Profession(strings.ToLower(strings.TrimSpace(string(p))))]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownProfession, p)
	}
	return d, nil
}

func (r *Registry) FiningProfession() Profession { return r.fining }

func (r *Registry) FastTrackProfession() Profession { return r.fastTrack }

func (r *Registry) MaxLevel(p Profession) (int, error) {
	d, err := r.Lookup(p)
	if err != nil {
		return 0, &ConfigError{Profession: p, Reason: "unknown profession"}
	}
	return d.MaxLevel(), nil
}

func (r *Registry) level(p Profession, level int) (LevelSpec, error) {
	d, err := r.Lookup(p)
	if err != nil {
		return LevelSpec{}, &ConfigError{Profession: p, Level: level, Reason: "unknown profession"}
	}
	if level < 1 || level > d.MaxLevel() {
		return LevelSpec{}, &ConfigError{Profession: p, Level: level, Reason: fmt.Sprintf("level outside [1,%d]", d.MaxLevel())}
	}
	return d.Levels[level-1], nil
}

func (r *Registry) SalaryRange(p Profession, level int) (Range, error) {
	spec, err := r.level(p, level)
	return spec.Salary, err
}

func (r *Registry) Cooldown(p Profession, level int) (time.Duration, error) {
	spec, err := r.level(p, level)
	return spec.Cooldown, err
}

func (r *Registry) PromotionChance(p Profession, level int) (float64, error) {
	spec, err := r.level(p, level)
	return spec.PromotionChance, err
}

func (r *Registry) GuaranteedThreshold(p Profession, level int) (int, error) {
	spec, err := r.level(p, level)
	return spec.GuaranteedAfter, err
}

func (r *Registry) Title(p Profession, level int) (string, error) {
	spec, err := r.level(p, level)
	return spec.Title, err
}
