package jobs

import (
	"fmt"
	"strings"
	"time"
)

type ActionKind string

const (
	ActionWork ActionKind = "work"
	ActionFine ActionKind = "fine"
)

// CooldownKey identifies one cooldown entry. Target is empty for actions
// that are not aimed at another participant.
type CooldownKey struct {
	Participant string
	Action      ActionKind
	Target      string
}

func WorkKey(participant string) CooldownKey {
	return CooldownKey{Participant: participant, Action: ActionWork}
}

func FineKey(actor, victim string) CooldownKey {
	return CooldownKey{Participant: actor, Action: ActionFine, Target: victim}
}

func (k CooldownKey) String() string {
	if k.Target == "" {
		return string(k.Action)
	}
	return string(k.Action) + ":" + k.Target
}

func (k CooldownKey) Validate() error {
	if strings.TrimSpace(k.Participant) == "" {
		return fmt.Errorf("cooldown key: participant is required")
	}
	switch k.Action {
	case ActionWork:
		if k.Target != "" {
			return fmt.Errorf("cooldown key: work action takes no target")
		}
	case ActionFine:
		if strings.TrimSpace(k.Target) == "" {
			return fmt.Errorf("cooldown key: fine action requires a target")
		}
	default:
		return fmt.Errorf("cooldown key: unknown action %q", k.Action)
	}
	return nil
}

// ParseActionKey accepts the "work" and "fine:{victim}" spellings used by
// admin tooling.
func ParseActionKey(participant, raw string) (CooldownKey, error) {
	raw = strings.TrimSpace(raw)
	action, target, _ := strings.Cut(raw, ":")
	key := CooldownKey{
		Participant: strings.TrimSpace(participant),
		Action:      ActionKind(strings.ToLower(action)),
		Target:      strings.TrimSpace(target),
	}
	if err := key.Validate(); err != nil {
		return CooldownKey{}, err
	}
	return key, nil
}

// Remaining is the wait left on an entry expiring at expiresAt. Expired
// entries yield zero.
func Remaining(now, expiresAt time.Time) time.Duration {
	if !expiresAt.After(now) {
		return 0
	}
	return expiresAt.Sub(now)
}
