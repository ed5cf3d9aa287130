package jobs

import (
	"fmt"
	"math"
	"time"
)

type FinePolicy struct {
	// ProtectionFloor is the minimum victim balance that can be fined.
	ProtectionFloor int64
	VictimCooldown  time.Duration
	// BonusRate is applied to the fine when the actor outranks the victim.
	BonusRate float64
}

func DefaultFinePolicy() FinePolicy {
	return FinePolicy{
		ProtectionFloor: 50,
		VictimCooldown:  time.Hour,
		BonusRate:       0.5,
	}
}

func (p FinePolicy) Validate() error {
	if p.ProtectionFloor < 0 {
		return fmt.Errorf("%w: protection floor must not be negative", ErrConfiguration)
	}
	if p.VictimCooldown <= 0 {
		return fmt.Errorf("%w: victim cooldown must be positive", ErrConfiguration)
	}
	if p.BonusRate < 0 || p.BonusRate > 1 || math.IsNaN(p.BonusRate) {
		return fmt.Errorf("%w: bonus rate must be within [0,1]", ErrConfiguration)
	}
	return nil
}

type FineQuote struct {
	Fine    int64 `json:"fine"`
	Bonus   int64 `json:"bonus"`
	Clamped bool  `json:"clamped"`
}

func (q FineQuote) Total() int64 { return q.Fine + q.Bonus }

// quoteFine sizes a fine from the victim's own salary tier and fits it into
// the victim's balance. The bonus is given up before the fine is reduced.
func quoteFine(reg *Registry, policy FinePolicy, actor, victim Record, victimBalance int64, rnd Rand) (FineQuote, error) {
	if victimBalance < policy.ProtectionFloor {
		return FineQuote{}, fmt.Errorf("%w: balance %d is below %d", ErrTargetProtected, victimBalance, policy.ProtectionFloor)
	}
	salary, err := reg.SalaryRange(victim.Profession, victim.Level)
	if err != nil {
		return FineQuote{}, err
	}
	q := FineQuote{Fine: randomIn(rnd, salary)}
	if actor.Level > victim.Level {
		q.Bonus = int64(math.Floor(float64(q.Fine) * policy.BonusRate))
	}
	if q.Total() > victimBalance {
		q.Clamped = true
		if q.Fine >= victimBalance {
			q.Fine, q.Bonus = victimBalance, 0
		} else {
			q.Bonus = victimBalance - q.Fine
		}
	}
	if q.Total() <= 0 {
		return FineQuote{}, ErrInsufficientVictimFunds
	}
	return q, nil
}
