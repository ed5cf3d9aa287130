package jobs

type PromotionKind string

const (
	PromotionNone       PromotionKind = "none"
	PromotionRandom     PromotionKind = "random"
	PromotionGuaranteed PromotionKind = "guaranteed"
	PromotionTrap       PromotionKind = "trap"
)

type Promotion struct {
	Kind PromotionKind `json:"kind"`
	From int           `json:"from"`
	To   int           `json:"to"`
	// Roll is the drawn value; -1 when no draw was made.
	Roll float64 `json:"roll"`
}

func (p Promotion) Promoted() bool {
	return p.Kind == PromotionRandom || p.Kind == PromotionGuaranteed
}

// evaluatePromotion decides the level change for a record that has already
// had its work counted. At most one level is gained. On the fast-track top
// level a promotion that would fire becomes the trap instead.
func evaluatePromotion(reg *Registry, rec Record, rnd Rand) (Promotion, error) {
	out := Promotion{Kind: PromotionNone, From: rec.Level, To: rec.Level, Roll: -1}
	d, err := reg.Lookup(rec.Profession)
	if err != nil {
		return out, &ConfigError{Profession: rec.Profession, Level: rec.Level, Reason: "unknown profession"}
	}
	top := rec.Level == d.MaxLevel()
	if top && !d.Trap {
		return out, nil
	}
	spec, err := reg.level(rec.Profession, rec.Level)
	if err != nil {
		return out, err
	}

	out.Roll = rnd.Float64()
	switch {
	case out.Roll < spec.PromotionChance:
		out.Kind = PromotionRandom
	case spec.GuaranteedAfter > 0 && rec.TimesWorked >= spec.GuaranteedAfter:
		out.Kind = PromotionGuaranteed
	default:
		return out, nil
	}

	if top {
		out.Kind = PromotionTrap
		out.To = 1
		return out, nil
	}
	out.To = rec.Level + 1
	return out, nil
}

// apply returns the record after the promotion. Balance effects of the trap
// are applied by the caller.
func (p Promotion) apply(rec Record) Record {
	switch p.Kind {
	case PromotionRandom, PromotionGuaranteed, PromotionTrap:
		rec.Level = p.To
		rec.TimesWorked = 0
	}
	return rec
}
