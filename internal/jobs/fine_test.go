package jobs

import (
	"errors"
	"testing"
	"time"
)

func TestQuoteFine(t *testing.T) {
	reg := DefaultRegistry()
	policy := DefaultFinePolicy()
	actor := Record{Profession: Interpol, Level: 3}
	victim := Record{Profession: "banker", Level: 1}

	// Int63n(11) -> 5 draws 15 from [10,20].
	q, err := quoteFine(reg, policy, actor, victim, 200, &scriptedRand{ints: []int64{5}})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Fine != 15 || q.Bonus != 7 || q.Total() != 22 || q.Clamped {
		t.Fatalf("quote=%+v total=%d", q, q.Total())
	}
}

func TestQuoteFineDrawsFromVictimTier(t *testing.T) {
	reg := DefaultRegistry()
	actor := Record{Profession: Interpol, Level: 3}
	victim := Record{Profession: "banker", Level: 1}
	rnd := NewRand(7)
	for i := 0; i < 500; i++ {
		q, err := quoteFine(reg, DefaultFinePolicy(), actor, victim, 10_000, rnd)
		if err != nil {
			t.Fatalf("quote: %v", err)
		}
		if q.Fine < 10 || q.Fine > 20 {
			t.Fatalf("fine %d outside victim tier [10,20]", q.Fine)
		}
		if q.Bonus != q.Fine/2 {
			t.Fatalf("bonus %d want floor(%d*0.5)", q.Bonus, q.Fine)
		}
	}
}

func TestQuoteFineNoBonusWithoutSeniority(t *testing.T) {
	reg := DefaultRegistry()
	for _, actorLevel := range []int{1, 2} {
		q, err := quoteFine(reg, DefaultFinePolicy(), Record{Profession: Interpol, Level: actorLevel}, Record{Profession: "chef", Level: 2}, 500, &scriptedRand{})
		if err != nil {
			t.Fatalf("quote: %v", err)
		}
		if q.Bonus != 0 || q.Fine != 20 {
			t.Fatalf("actor level %d: quote=%+v", actorLevel, q)
		}
	}
}

func TestQuoteFineProtectionFloor(t *testing.T) {
	reg := DefaultRegistry()
	_, err := quoteFine(reg, DefaultFinePolicy(), Record{Profession: Interpol, Level: 3}, Record{Profession: "chef", Level: 1}, 30, &scriptedRand{})
	if !errors.Is(err, ErrTargetProtected) {
		t.Fatalf("err=%v want target protected", err)
	}
	if _, err := quoteFine(reg, DefaultFinePolicy(), Record{Profession: Interpol, Level: 3}, Record{Profession: "chef", Level: 1}, 50, &scriptedRand{}); err != nil {
		t.Fatalf("balance at the floor is fineable: %v", err)
	}
}

func TestQuoteFineClamp(t *testing.T) {
	reg := DefaultRegistry()
	policy := FinePolicy{ProtectionFloor: 10, VictimCooldown: time.Hour, BonusRate: 0.5}
	actor := Record{Profession: Interpol, Level: 3}
	victim := Record{Profession: "chef", Level: 1}

	tests := []struct {
		balance   int64
		fine      int64
		bonus     int64
		clamped   bool
		drawIndex int64
	}{
		{balance: 100, fine: 15, bonus: 7, clamped: false, drawIndex: 5},
		{balance: 18, fine: 15, bonus: 3, clamped: true, drawIndex: 5},
		{balance: 15, fine: 15, bonus: 0, clamped: true, drawIndex: 5},
		{balance: 12, fine: 12, bonus: 0, clamped: true, drawIndex: 5},
	}
	for _, tc := range tests {
		q, err := quoteFine(reg, policy, actor, victim, tc.balance, &scriptedRand{ints: []int64{tc.drawIndex}})
		if err != nil {
			t.Fatalf("balance %d: %v", tc.balance, err)
		}
		if q.Fine != tc.fine || q.Bonus != tc.bonus || q.Clamped != tc.clamped {
			t.Fatalf("balance %d: got %+v want fine=%d bonus=%d clamped=%v", tc.balance, q, tc.fine, tc.bonus, tc.clamped)
		}
		if q.Total() > tc.balance {
			t.Fatalf("balance %d: total %d exceeds balance", tc.balance, q.Total())
		}
	}
}

func TestQuoteFineEmptyVictim(t *testing.T) {
	policy := FinePolicy{ProtectionFloor: 0, VictimCooldown: time.Hour, BonusRate: 0.5}
	_, err := quoteFine(DefaultRegistry(), policy, Record{Profession: Interpol, Level: 3}, Record{Profession: "chef", Level: 1}, 0, &scriptedRand{})
	if !errors.Is(err, ErrInsufficientVictimFunds) {
		t.Fatalf("err=%v want insufficient victim funds", err)
	}
}

func TestFinePolicyValidate(t *testing.T) {
	if err := DefaultFinePolicy().Validate(); err != nil {
		t.Fatalf("default policy: %v", err)
	}
	bad := []FinePolicy{
		{ProtectionFloor: -1, VictimCooldown: time.Hour, BonusRate: 0.5},
		{ProtectionFloor: 50, VictimCooldown: 0, BonusRate: 0.5},
		{ProtectionFloor: 50, VictimCooldown: time.Hour, BonusRate: 1.5},
	}
	for _, p := range bad {
		if err := p.Validate(); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("policy %+v: err=%v", p, err)
		}
	}
}
