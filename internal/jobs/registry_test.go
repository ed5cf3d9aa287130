package jobs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	if got := len(reg.Professions()); got != 18 {
		t.Fatalf("professions=%d want 18", got)
	}
	if reg.FiningProfession() != Interpol {
		t.Fatalf("fining profession=%q", reg.FiningProfession())
	}
	if reg.FastTrackProfession() != Selfmade {
		t.Fatalf("fast-track profession=%q", reg.FastTrackProfession())
	}
	if max, _ := reg.MaxLevel(Selfmade); max != 6 {
		t.Fatalf("selfmade max level=%d want 6", max)
	}
	if max, _ := reg.MaxLevel(Interpol); max != 10 {
		t.Fatalf("interpol max level=%d want 10", max)
	}

	salary, err := reg.SalaryRange(Interpol, 3)
	if err != nil || salary != (Range{35, 55}) {
		t.Fatalf("interpol level 3 salary=%v err=%v", salary, err)
	}
	cd, err := reg.Cooldown("banker", 3)
	if err != nil || cd != 90*time.Minute {
		t.Fatalf("banker level 3 cooldown=%s err=%v", cd, err)
	}
	cd, err = reg.Cooldown(Selfmade, 5)
	if err != nil || cd != 30*time.Minute {
		t.Fatalf("selfmade cooldown=%s err=%v", cd, err)
	}
	if g, _ := reg.GuaranteedThreshold(Selfmade, 6); g != 45 {
		t.Fatalf("selfmade level 6 guaranteed=%d want 45", g)
	}
}

func TestDefaultDescriptorsAreCopies(t *testing.T) {
	a := DefaultDescriptors()
	a[0].Levels[0].Salary = Range{1, 1}
	b := DefaultDescriptors()
	if b[0].Levels[0].Salary != (Range{10, 20}) {
		t.Fatalf("default table was mutated through a returned copy")
	}
}

func TestRegistryCurvesHardenWithLevel(t *testing.T) {
	for _, d := range DefaultRegistry().Professions() {
		for i := 1; i < len(d.Levels); i++ {
			prev, cur := d.Levels[i-1], d.Levels[i]
			if cur.PromotionChance > prev.PromotionChance {
				t.Fatalf("%s level %d: chance rises %.3f -> %.3f", d.ID, i+1, prev.PromotionChance, cur.PromotionChance)
			}
			if cur.GuaranteedAfter != 0 && cur.GuaranteedAfter < prev.GuaranteedAfter {
				t.Fatalf("%s level %d: threshold falls %d -> %d", d.ID, i+1, prev.GuaranteedAfter, cur.GuaranteedAfter)
			}
		}
	}
}

func TestRegistryLookupsFailFast(t *testing.T) {
	reg := DefaultRegistry()
	cases := []struct {
		profession Profession
		level      int
	}{
		{Interpol, 0},
		{Interpol, 11},
		{Selfmade, 7},
		{"astronaut", 1},
	}
	for _, tc := range cases {
		if _, err := reg.SalaryRange(tc.profession, tc.level); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("salary %s/%d: err=%v want configuration error", tc.profession, tc.level, err)
		}
		if _, err := reg.Cooldown(tc.profession, tc.level); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("cooldown %s/%d: err=%v want configuration error", tc.profession, tc.level, err)
		}
		if _, err := reg.PromotionChance(tc.profession, tc.level); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("chance %s/%d: err=%v want configuration error", tc.profession, tc.level, err)
		}
		if _, err := reg.GuaranteedThreshold(tc.profession, tc.level); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("threshold %s/%d: err=%v want configuration error", tc.profession, tc.level, err)
		}
	}
	if _, err := reg.Lookup("astronaut"); !errors.Is(err, ErrUnknownProfession) {
		t.Fatalf("lookup err=%v want unknown profession", err)
	}
	if _, err := reg.Lookup("  InterPol "); err != nil {
		t.Fatalf("lookup should normalise case and space: %v", err)
	}
}

func testLevels(n int) []LevelSpec {
	levels := make([]LevelSpec, n)
	for i := range levels {
		levels[i] = LevelSpec{
			Title:           "L",
			Salary:          Range{int64(10 * (i + 1)), int64(20 * (i + 1))},
			Cooldown:        time.Hour,
			PromotionChance: 0.05 - float64(i)*0.01,
			GuaranteedAfter: 10 * (i + 1),
		}
	}
	levels[n-1].GuaranteedAfter = 0
	return levels
}

func TestNewRegistryRejectsInvalidTables(t *testing.T) {
	rising := testLevels(3)
	rising[2].PromotionChance = 0.9

	falling := testLevels(3)
	falling[1].GuaranteedAfter = 5

	noCooldown := testLevels(2)
	noCooldown[0].Cooldown = 0

	badSalary := testLevels(2)
	badSalary[1].Salary = Range{30, 20}

	trapNoThreshold := testLevels(2)

	cases := map[string][]Descriptor{
		"no fining profession": {{ID: "a", Levels: testLevels(2)}},
		"two fining professions": {
			{ID: "a", CanFine: true, Levels: testLevels(2)},
			{ID: "b", CanFine: true, Levels: testLevels(2)},
		},
		"two trap professions": {
			{ID: "a", CanFine: true, Levels: testLevels(2)},
			{ID: "b", Trap: true, Levels: withTopThreshold(testLevels(2))},
			{ID: "c", Trap: true, Levels: withTopThreshold(testLevels(2))},
		},
		"duplicate id":           {{ID: "a", CanFine: true, Levels: testLevels(2)}, {ID: "A", Levels: testLevels(2)}},
		"no levels":              {{ID: "a", CanFine: true}},
		"rising chance":          {{ID: "a", CanFine: true, Levels: rising}},
		"falling threshold":      {{ID: "a", CanFine: true, Levels: falling}},
		"zero cooldown":          {{ID: "a", CanFine: true, Levels: noCooldown}},
		"inverted salary":        {{ID: "a", CanFine: true, Levels: badSalary}},
		"trap without threshold": {{ID: "a", CanFine: true, Levels: testLevels(2)}, {ID: "b", Trap: true, Levels: trapNoThreshold}},
	}
	for name, descriptors := range cases {
		if _, err := NewRegistry(descriptors); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("%s: err=%v want configuration error", name, err)
		}
	}
}

func withTopThreshold(levels []LevelSpec) []LevelSpec {
	levels[len(levels)-1].GuaranteedAfter = 100
	return levels
}

func TestLoadRegistryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "professions.toml")
	body := `
[[profession]]
id = "sheriff"
name = "Sheriff"
can_fine = true
  [[profession.level]]
  title = "Deputy"
  salary_min = 5
  salary_max = 9
  cooldown = "45m"
  promotion_chance = 0.1
  guaranteed_after = 3
  [[profession.level]]
  title = "Sheriff"
  salary_min = 10
  salary_max = 15
  cooldown = "2h"
  promotion_chance = 0.05

[[profession]]
id = "hustler"
trap = true
  [[profession.level]]
  title = "Runner"
  salary_min = 1
  salary_max = 2
  cooldown = "10m"
  promotion_chance = 0.2
  guaranteed_after = 2
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	reg, err := LoadRegistryFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if reg.FiningProfession() != "sheriff" || reg.FastTrackProfession() != "hustler" {
		t.Fatalf("fining=%q fast-track=%q", reg.FiningProfession(), reg.FastTrackProfession())
	}
	cd, err := reg.Cooldown("sheriff", 1)
	if err != nil || cd != 45*time.Minute {
		t.Fatalf("cooldown=%s err=%v", cd, err)
	}
	d, _ := reg.Lookup("hustler")
	if d.Name != "hustler" {
		t.Fatalf("name should default to id, got %q", d.Name)
	}
}

func TestLoadRegistryFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "professions.toml")
	body := `
[[profession]]
id = "sheriff"
can_fine = true
salary = 10
  [[profession.level]]
  title = "Deputy"
  salary_min = 5
  salary_max = 9
  cooldown = "45m"
  promotion_chance = 0.1
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadRegistryFile(path); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err=%v want configuration error", err)
	}
}
