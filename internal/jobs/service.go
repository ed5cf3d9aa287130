package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultLedgerTimeout = 5 * time.Second
	defaultNotifyTimeout = 3 * time.Second
)

type Service struct {
	store          Store
	reg            *Registry
	log            *slog.Logger
	rand           Rand
	now            func() time.Time
	notifier       Notifier
	metrics        *Metrics
	policy         FinePolicy
	ledgerTimeout  time.Duration
	notifyTimeout  time.Duration
	tracer         trace.Tracer
	starterBalance int64
}

type WorkRequest struct {
	Actor string `json:"actor"`
	// Target is a participant id or "@username". Empty for ordinary work.
	Target         string `json:"target,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func NewService(store Store, reg *Registry, logger *slog.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrConfiguration)
	}
	if reg == nil {
		reg = DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:         store,
		reg:           reg,
		log:           logger,
		rand:          NewSeededRand(),
		now:           func() time.Time { return time.Now().UTC() },
		notifier:      discardNotifier{},
		policy:        DefaultFinePolicy(),
		ledgerTimeout: defaultLedgerTimeout,
		notifyTimeout: defaultNotifyTimeout,
		tracer:        otel.Tracer("payday/internal/jobs"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.policy.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) Registry() *Registry { return s.reg }

func (s *Service) FinePolicy() FinePolicy { return s.policy }

// Work runs one work action. With a target it is a fine, which also counts
// as the actor's work for cooldown and promotion.
func (s *Service) Work(ctx context.Context, req WorkRequest) (Outcome, error) {
	started := time.Now()
	req.Actor = strings.TrimSpace(req.Actor)
	req.Target = strings.TrimSpace(req.Target)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)

	op := "work"
	if req.Target != "" {
		op = "fine"
	}
	ctx, span := s.tracer.Start(ctx, "jobs."+op, trace.WithAttributes(
		attribute.String("payday.actor", req.Actor),
		attribute.String("payday.target", req.Target),
	))
	defer span.End()
	defer s.metrics.observeDuration(op, started)

	var out Outcome
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		now := s.now()
		actor, err := s.guard(ctx, tx, req.Actor)
		if err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			if err := tx.ClaimRequestKey(ctx, actor.ID, req.IdempotencyKey, op, now); err != nil {
				return err
			}
		}
		rec, err := tx.Job(ctx, actor.ID)
		if err != nil && !errors.Is(err, ErrNoJob) {
			return err
		}
		var current *Record
		if err == nil {
			if err := rec.validate(s.reg); err != nil {
				return err
			}
			current = &rec
		}
		if req.Target != "" {
			out, err = s.fine(ctx, tx, actor, current, req.Target, now)
			return err
		}
		if current == nil {
			return ErrNoJob
		}
		out, err = s.work(ctx, tx, actor, *current, now)
		return err
	})
	if err != nil {
		s.fail(span, op, req.Actor, err)
		return Outcome{}, err
	}

	span.SetAttributes(attribute.String("payday.outcome", string(out.Kind)))
	s.metrics.observeOutcome(out)
	s.logOutcome(out)
	s.publish(ctx, out)
	return out, nil
}

func (s *Service) work(ctx context.Context, tx Tx, actor Participant, rec Record, now time.Time) (Outcome, error) {
	cooldown, err := s.reg.Cooldown(rec.Profession, rec.Level)
	if err != nil {
		return Outcome{}, err
	}
	if err := s.acquire(ctx, tx, WorkKey(actor.ID), now, cooldown); err != nil {
		return Outcome{}, err
	}
	salary, err := s.reg.SalaryRange(rec.Profession, rec.Level)
	if err != nil {
		return Outcome{}, err
	}
	earned := randomIn(s.rand, salary)
	balance, err := tx.Credit(ctx, actor.ID, earned)
	if err != nil {
		return Outcome{}, fmt.Errorf("credit salary: %w", err)
	}
	out := Outcome{
		Kind:   OutcomeEarned,
		Actor:  actor.ID,
		Earned: earned,
		At:     now,
	}
	if err := s.finishWork(ctx, tx, &out, rec, balance, now); err != nil {
		return Outcome{}, err
	}
	return out, nil
}

func (s *Service) fine(ctx context.Context, tx Tx, actor Participant, rec *Record, target string, now time.Time) (Outcome, error) {
	if rec == nil || rec.Profession != s.reg.FiningProfession() {
		return Outcome{}, ErrNotAuthorized
	}
	victim, err := s.resolveTarget(ctx, tx, target)
	if err != nil {
		return Outcome{}, err
	}
	if victim.ID == actor.ID {
		return Outcome{}, ErrInvalidTarget
	}
	if victim.Banned {
		return Outcome{}, fmt.Errorf("%w: target is banned", ErrTargetIneligible)
	}
	victimJob, err := tx.Job(ctx, victim.ID)
	if errors.Is(err, ErrNoJob) {
		return Outcome{}, fmt.Errorf("%w: target has no job", ErrTargetIneligible)
	}
	if err != nil {
		return Outcome{}, err
	}
	if err := victimJob.validate(s.reg); err != nil {
		return Outcome{}, err
	}

	fineKey := FineKey(actor.ID, victim.ID)
	if err := s.acquire(ctx, tx, fineKey, now, s.policy.VictimCooldown); err != nil {
		return Outcome{}, err
	}
	workCooldown, err := s.reg.Cooldown(rec.Profession, rec.Level)
	if err != nil {
		return Outcome{}, err
	}
	if err := s.acquire(ctx, tx, WorkKey(actor.ID), now, workCooldown); err != nil {
		return Outcome{}, err
	}

	quote, err := quoteFine(s.reg, s.policy, *rec, victimJob, victim.Balance, s.rand)
	if err != nil {
		return Outcome{}, err
	}
	total := quote.Total()
	victimBalance, err := tx.Debit(ctx, victim.ID, total)
	if err != nil {
		return Outcome{}, fmt.Errorf("debit fine: %w", err)
	}
	balance, err := tx.Credit(ctx, actor.ID, total)
	if err != nil {
		return Outcome{}, fmt.Errorf("credit fine: %w", err)
	}
	if err := tx.AppendFine(ctx, FineEvent{
		ID:        uuid.New(),
		Actor:     actor.ID,
		Victim:    victim.ID,
		Fine:      quote.Fine,
		Bonus:     quote.Bonus,
		CreatedAt: now,
	}); err != nil {
		return Outcome{}, fmt.Errorf("append fine event: %w", err)
	}

	out := Outcome{
		Kind:  OutcomeFined,
		Actor: actor.ID,
		At:    now,
		Fine: &FineResult{
			Victim:         victim.ID,
			VictimUsername: victim.Username,
			VictimLevel:    victimJob.Level,
			Fine:           quote.Fine,
			Bonus:          quote.Bonus,
			Total:          total,
			Clamped:        quote.Clamped,
			VictimBalance:  victimBalance,
			NextFineAt:     now.Add(s.policy.VictimCooldown),
		},
	}
	if err := s.finishWork(ctx, tx, &out, *rec, balance, now); err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// finishWork counts the work, runs the promotion evaluator and re-arms the
// work cooldown at the resulting level.
func (s *Service) finishWork(ctx context.Context, tx Tx, out *Outcome, rec Record, balance int64, now time.Time) error {
	rec = rec.recordWork(now)
	promo, err := evaluatePromotion(s.reg, rec, s.rand)
	if err != nil {
		return err
	}
	rec = promo.apply(rec)
	if promo.Kind == PromotionTrap && balance > 0 {
		loss := balance
		if balance, err = tx.Debit(ctx, rec.Participant, loss); err != nil {
			return fmt.Errorf("empty balance: %w", err)
		}
		out.TrapLoss = loss
	}
	if err := tx.PutJob(ctx, rec); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	cooldown, err := s.reg.Cooldown(rec.Profession, rec.Level)
	if err != nil {
		return err
	}
	next := now.Add(cooldown)
	if err := tx.SetCooldown(ctx, WorkKey(rec.Participant), next); err != nil {
		return fmt.Errorf("set work cooldown: %w", err)
	}
	title, err := s.reg.Title(rec.Profession, rec.Level)
	if err != nil {
		return err
	}

	out.Profession = rec.Profession
	out.Level = rec.Level
	out.Title = title
	out.TimesWorked = rec.TimesWorked
	out.Promotion = promo
	out.Balance = balance
	out.NextWorkAt = next
	if out.Kind != OutcomeFined {
		switch promo.Kind {
		case PromotionRandom, PromotionGuaranteed:
			out.Kind = OutcomePromoted
		case PromotionTrap:
			out.Kind = OutcomeTrapSprung
		}
	}
	return nil
}

func (s *Service) acquire(ctx context.Context, tx Tx, key CooldownKey, now time.Time, d time.Duration) error {
	acquired, current, err := tx.AcquireCooldown(ctx, key, now, now.Add(d))
	if err != nil {
		return fmt.Errorf("acquire %s cooldown: %w", key, err)
	}
	if !acquired {
		return &CooldownError{Key: key, Remaining: Remaining(now, current)}
	}
	return nil
}

func (s *Service) guard(ctx context.Context, tx Tx, id string) (Participant, error) {
	if id == "" {
		return Participant{}, ErrNotRegistered
	}
	p, err := tx.Participant(ctx, id)
	if err != nil {
		return Participant{}, err
	}
	if p.Banned {
		return Participant{}, ErrBanned
	}
	return p, nil
}

func (s *Service) resolveTarget(ctx context.Context, tx Tx, raw string) (Participant, error) {
	var (
		p   Participant
		err error
	)
	if name, ok := strings.CutPrefix(raw, "@"); ok {
		p, err = tx.ParticipantByUsername(ctx, name)
	} else {
		p, err = tx.Participant(ctx, raw)
	}
	if errors.Is(err, ErrNotRegistered) {
		return Participant{}, fmt.Errorf("%w: %s is not registered", ErrTargetIneligible, raw)
	}
	return p, err
}

func (s *Service) SelectProfession(ctx context.Context, actor string, profession Profession, replace bool) (Record, error) {
	ctx, span := s.tracer.Start(ctx, "jobs.select_profession")
	defer span.End()

	var out Record
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := s.guard(ctx, tx, strings.TrimSpace(actor))
		if err != nil {
			return err
		}
		var current *Record
		rec, err := tx.Job(ctx, p.ID)
		switch {
		case err == nil:
			current = &rec
		case !errors.Is(err, ErrNoJob):
			return err
		}
		next, err := assignProfession(s.reg, current, p.ID, profession, replace, s.now())
		if err != nil {
			return err
		}
		if err := tx.PutJob(ctx, next); err != nil {
			return fmt.Errorf("save job: %w", err)
		}
		out = next
		return nil
	})
	if err != nil {
		s.fail(span, "select_profession", actor, err)
		return Record{}, err
	}
	s.log.Info("profession selected", "participant", out.Participant, "profession", out.Profession, "replace", replace)
	return out, nil
}

func (s *Service) Resign(ctx context.Context, actor string) error {
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := s.guard(ctx, tx, strings.TrimSpace(actor))
		if err != nil {
			return err
		}
		deleted, err := tx.DeleteJob(ctx, p.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrNoJob
		}
		return nil
	})
	if err != nil {
		s.fail(nil, "resign", actor, err)
		return err
	}
	s.log.Info("participant resigned", "participant", actor)
	return nil
}

type JobView struct {
	Participant       Participant   `json:"participant"`
	Record            Record        `json:"record"`
	Name              string        `json:"name"`
	Emoji             string        `json:"emoji"`
	Title             string        `json:"title"`
	NextTitle         string        `json:"next_title,omitempty"`
	MaxLevel          int           `json:"max_level"`
	Salary            Range         `json:"salary"`
	Cooldown          time.Duration `json:"cooldown"`
	CooldownRemaining time.Duration `json:"cooldown_remaining"`
	GuaranteedAfter   int           `json:"guaranteed_after"`
	CanFine           bool          `json:"can_fine"`
}

func (s *Service) Status(ctx context.Context, actor string) (JobView, error) {
	var view JobView
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := s.guard(ctx, tx, strings.TrimSpace(actor))
		if err != nil {
			return err
		}
		rec, err := tx.Job(ctx, p.ID)
		if err != nil {
			return err
		}
		expires, ok, err := tx.Cooldown(ctx, WorkKey(p.ID))
		if err != nil {
			return err
		}
		v, err := s.view(p, rec)
		if err != nil {
			return err
		}
		if ok {
			v.CooldownRemaining = Remaining(s.now(), expires)
		}
		view = v
		return nil
	})
	if err != nil {
		return JobView{}, err
	}
	return view, nil
}

func (s *Service) view(p Participant, rec Record) (JobView, error) {
	d, err := s.reg.Lookup(rec.Profession)
	if err != nil {
		return JobView{}, err
	}
	spec, err := s.reg.level(rec.Profession, rec.Level)
	if err != nil {
		return JobView{}, err
	}
	v := JobView{
		Participant:     p,
		Record:          rec,
		Name:            d.Name,
		Emoji:           d.Emoji,
		Title:           spec.Title,
		MaxLevel:        d.MaxLevel(),
		Salary:          spec.Salary,
		Cooldown:        spec.Cooldown,
		GuaranteedAfter: spec.GuaranteedAfter,
		CanFine:         d.CanFine,
	}
	if rec.Level < d.MaxLevel() {
		v.NextTitle = d.Levels[rec.Level].Title
	}
	return v, nil
}

// ResetCooldown clears one cooldown entry without any checks.
func (s *Service) ResetCooldown(ctx context.Context, key CooldownKey) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	var cleared bool
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		cleared, err = tx.ClearCooldown(ctx, key)
		return err
	})
	if err != nil {
		s.fail(nil, "reset_cooldown", key.Participant, err)
		return false, err
	}
	s.log.Info("cooldown reset", "participant", key.Participant, "key", key.String(), "cleared", cleared)
	return cleared, nil
}

func (s *Service) FineStats(ctx context.Context, actor string, since time.Time) (FineStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	return s.store.FineStats(ctx, strings.TrimSpace(actor), since)
}

// Register creates the participant's account when it does not exist yet.
func (s *Service) Register(ctx context.Context, id, username string) (Participant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Participant{}, fmt.Errorf("participant id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	return s.store.EnsureParticipant(ctx, id, strings.TrimSpace(username), s.starterBalance)
}

func (s *Service) SetBanned(ctx context.Context, id string, banned bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	if err := s.store.SetBanned(ctx, strings.TrimSpace(id), banned); err != nil {
		return err
	}
	s.log.Info("ban flag changed", "participant", id, "banned", banned)
	return nil
}

func (s *Service) PurgeExpiredCooldowns(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	return s.store.PurgeCooldowns(ctx, s.now())
}

func (s *Service) inTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	txCtx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	err := s.store.InTx(txCtx, func(tx Tx) error { return fn(txCtx, tx) })
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return err
}

func (s *Service) publish(ctx context.Context, out Outcome) {
	events := out.Events()
	if len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	for _, ev := range events {
		if err := s.notifier.Notify(ctx, ev); err != nil {
			s.metrics.observeNotifyFailure()
			s.log.Warn("notify failed", "kind", ev.Kind, "recipient", ev.Recipient, "err", err)
		}
	}
}

func (s *Service) logOutcome(out Outcome) {
	switch {
	case out.Fine != nil:
		s.log.Info("fine applied",
			"actor", out.Actor,
			"victim", out.Fine.Victim,
			"fine", out.Fine.Fine,
			"bonus", out.Fine.Bonus,
			"clamped", out.Fine.Clamped,
		)
	case out.Kind == OutcomeTrapSprung:
		s.log.Info("trap sprung", "actor", out.Actor, "profession", out.Profession, "lost", out.TrapLoss)
	default:
		s.log.Debug("work done", "actor", out.Actor, "kind", out.Kind, "earned", out.Earned, "level", out.Level)
	}
}

func (s *Service) fail(span trace.Span, op, actor string, err error) {
	s.metrics.observeRejection(err)
	if IsUserError(err) {
		s.log.Debug("action rejected", "op", op, "participant", actor, "err", err)
		return
	}
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.log.Error("action failed", "op", op, "participant", actor, "err", err)
}
