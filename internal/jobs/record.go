package jobs

import (
	"fmt"
	"strings"
	"time"
)

// Record is a participant's current job. A participant without a Record is
// unemployed.
type Record struct {
	Participant  string     `json:"participant"`
	Profession   Profession `json:"profession"`
	Level        int        `json:"level"`
	TimesWorked  int        `json:"times_worked"`
	LastWorkTime *time.Time `json:"last_work_time,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func newRecord(participant string, profession Profession, now time.Time) Record {
	return Record{
		Participant: participant,
		Profession:  profession,
		Level:       1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// assignProfession applies the Unemployed/Employed transition. current is nil
// when the participant has no job.
func assignProfession(reg *Registry, current *Record, participant string, profession Profession, replace bool, now time.Time) (Record, error) {
	d, err := reg.Lookup(profession)
	if err != nil {
		return Record{}, err
	}
	if current != nil && !replace {
		return Record{}, fmt.Errorf("%w: currently %s level %d", ErrAlreadyEmployed, current.Profession, current.Level)
	}
	return newRecord(participant, d.ID, now), nil
}

func (r Record) recordWork(now time.Time) Record {
	at := now
	r.TimesWorked++
	r.LastWorkTime = &at
	r.UpdatedAt = now
	return r
}

func (r Record) validate(reg *Registry) error {
	if strings.TrimSpace(r.Participant) == "" {
		return fmt.Errorf("job record: participant is required")
	}
	max, err := reg.MaxLevel(r.Profession)
	if err != nil {
		return err
	}
	if r.Level < 1 || r.Level > max {
		return &ConfigError{Profession: r.Profession, Level: r.Level, Reason: "stored level out of range"}
	}
	if r.TimesWorked < 0 {
		return &ConfigError{Profession: r.Profession, Level: r.Level, Reason: "negative work count"}
	}
	return nil
}
