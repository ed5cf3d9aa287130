package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"payday/internal/auth"
	"payday/internal/jobs"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Accounts signs participants up and in. Optional: without it the auth
// routes are not mounted and clients bring their own tokens.
type Accounts interface {
	SignUp(ctx context.Context, email, password string) (auth.Session, error)
	Login(ctx context.Context, email, password string) (auth.Session, error)
}

type Server struct {
	log      *slog.Logger
	jobs     *jobs.Service
	verifier auth.Verifier
	accounts Accounts
	admin    auth.AdminCheck
	metrics  http.Handler
	mux      *chi.Mux
}

type Option func(*Server)

func WithAccounts(a Accounts) Option {
	return func(s *Server) { s.accounts = a }
}

func WithAdmin(check auth.AdminCheck) Option {
	return func(s *Server) { s.admin = check }
}

func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

func New(logger *slog.Logger, svc *jobs.Service, verifier auth.Verifier, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:      logger,
		jobs:     svc,
		verifier: verifier,
		mux:      chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/professions", s.handleProfessions)

		if s.accounts != nil {
			r.Post("/auth/signup", s.handleSignup)
			r.Post("/auth/login", s.handleLogin)
		}

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/register", s.handleRegister)
			r.Get("/job", s.handleStatus)
			r.Post("/job", s.handleSelectProfession)
			r.Delete("/job", s.handleResign)
			r.Post("/work", s.handleWork)
			r.Get("/fines/stats", s.handleMyFineStats)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminMiddleware)
			r.Delete("/cooldowns/{participant}/{action}", s.handleResetCooldown)
			r.Post("/cooldowns/purge", s.handlePurgeCooldowns)
			r.Put("/participants/{participant}/ban", s.handleSetBanned)
			r.Get("/fines/stats", s.handleFineStats)
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		id, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				s.log.Warn("token verification failed", "err", err)
			}
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.admin.Verify(r.Header.Get("X-Admin-Token")); err != nil {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func identityFromContext(ctx context.Context) (auth.Identity, error) {
	id, ok := ctx.Value(identityContextKey).(auth.Identity)
	if !ok || id.ID == "" {
		return auth.Identity{}, errors.New("missing auth context")
	}
	return id, nil
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.accounts.SignUp(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if session.User.ID != "" {
		username := strings.TrimSpace(in.Username)
		if username == "" {
			username = session.User.Username()
		}
		if _, err := s.jobs.Register(r.Context(), session.User.ID, username); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.accounts.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if _, err := s.jobs.Register(r.Context(), session.User.ID, ""); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Username string `json:"username"`
	}
	if err := decodeJSON(r, &in); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		username = id.Username()
	}
	p, err := s.jobs.Register(r.Context(), id.ID, username)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleProfessions(w http.ResponseWriter, _ *http.Request) {
	descriptors := s.jobs.Registry().Professions()
	out := make([]professionResponse, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, newProfessionResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"professions": out})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	view, err := s.jobs.Status(r.Context(), id.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatusResponse(view))
}

func (s *Server) handleSelectProfession(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Profession string `json:"profession"`
		Replace    bool   `json:"replace"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.jobs.SelectProfession(r.Context(), id.ID, jobs.Profession(in.Profession), in.Replace)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleResign(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.jobs.Resign(r.Context(), id.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleWork(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Target string `json:"target"`
	}
	if err := decodeJSON(r, &in); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.jobs.Work(r.Context(), jobs.WorkRequest{
		Actor:          id.ID,
		Target:         in.Target,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMyFineStats(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	s.writeFineStats(w, r, id.ID)
}

func (s *Server) handleFineStats(w http.ResponseWriter, r *http.Request) {
	s.writeFineStats(w, r, r.URL.Query().Get("actor"))
}

func (s *Server) writeFineStats(w http.ResponseWriter, r *http.Request, actor string) {
	var since time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = t
	}
	stats, err := s.jobs.FineStats(r.Context(), actor, since)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleResetCooldown(w http.ResponseWriter, r *http.Request) {
	key, err := jobs.ParseActionKey(chi.URLParam(r, "participant"), chi.URLParam(r, "action"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cleared, err := s.jobs.ResetCooldown(r.Context(), key)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": cleared, "key": key.String()})
}

func (s *Server) handlePurgeCooldowns(w http.ResponseWriter, r *http.Request) {
	n, err := s.jobs.PurgeExpiredCooldowns(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purged": n})
}

func (s *Server) handleSetBanned(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Banned bool `json:"banned"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.jobs.SetBanned(r.Context(), chi.URLParam(r, "participant"), in.Banned); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type levelResponse struct {
	Level           int        `json:"level"`
	Title           string     `json:"title"`
	Salary          jobs.Range `json:"salary"`
	CooldownSeconds int64      `json:"cooldown_seconds"`
	PromotionChance float64    `json:"promotion_chance"`
	GuaranteedAfter int        `json:"guaranteed_after,omitempty"`
}

type professionResponse struct {
	ID      jobs.Profession `json:"id"`
	Name    string          `json:"name"`
	Emoji   string          `json:"emoji"`
	CanFine bool            `json:"can_fine,omitempty"`
	Trap    bool            `json:"trap,omitempty"`
	Levels  []levelResponse `json:"levels"`
}

func newProfessionResponse(d jobs.Descriptor) professionResponse {
	out := professionResponse{ID: d.ID, Name: d.Name, Emoji: d.Emoji, CanFine: d.CanFine, Trap: d.Trap}
	for i, l := range d.Levels {
		out.Levels = append(out.Levels, levelResponse{
			Level:           i + 1,
			Title:           l.Title,
			Salary:          l.Salary,
			CooldownSeconds: int64(l.Cooldown / time.Second),
			PromotionChance: l.PromotionChance,
			GuaranteedAfter: l.GuaranteedAfter,
		})
	}
	return out
}

type statusResponse struct {
	Participant      jobs.Participant `json:"participant"`
	Profession       jobs.Profession  `json:"profession"`
	Name             string           `json:"name"`
	Emoji            string           `json:"emoji"`
	Level            int              `json:"level"`
	MaxLevel         int              `json:"max_level"`
	Title            string           `json:"title"`
	NextTitle        string           `json:"next_title,omitempty"`
	TimesWorked      int              `json:"times_worked"`
	GuaranteedAfter  int              `json:"guaranteed_after,omitempty"`
	Salary           jobs.Range       `json:"salary"`
	CooldownSeconds  int64            `json:"cooldown_seconds"`
	RemainingSeconds int64            `json:"remaining_seconds"`
	CanFine          bool             `json:"can_fine"`
	LastWorkTime     *time.Time       `json:"last_work_time,omitempty"`
}

func newStatusResponse(v jobs.JobView) statusResponse {
	return statusResponse{
		Participant:      v.Participant,
		Profession:       v.Record.Profession,
		Name:             v.Name,
		Emoji:            v.Emoji,
		Level:            v.Record.Level,
		MaxLevel:         v.MaxLevel,
		Title:            v.Title,
		NextTitle:        v.NextTitle,
		TimesWorked:      v.Record.TimesWorked,
		GuaranteedAfter:  v.GuaranteedAfter,
		Salary:           v.Salary,
		CooldownSeconds:  int64(v.Cooldown / time.Second),
		RemainingSeconds: ceilSeconds(v.CooldownRemaining),
		CanFine:          v.CanFine,
		LastWorkTime:     v.Record.LastWorkTime,
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	var cd *jobs.CooldownError
	switch {
	case errors.As(err, &cd):
		secs := ceilSeconds(cd.Remaining)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":               err.Error(),
			"action":              cd.Key.String(),
			"retry_after_seconds": secs,
		})
	case errors.Is(err, jobs.ErrDuplicateIdempotency):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, jobs.ErrNotRegistered):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, jobs.ErrBanned), errors.Is(err, jobs.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, jobs.ErrNoJob), errors.Is(err, jobs.ErrAlreadyEmployed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, jobs.ErrUnknownProfession), errors.Is(err, jobs.ErrInvalidTarget):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, jobs.ErrTargetIneligible),
		errors.Is(err, jobs.ErrTargetProtected),
		errors.Is(err, jobs.ErrInsufficientVictimFunds):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, jobs.ErrTxConflict),
		errors.Is(err, jobs.ErrLedgerUnavailable),
		errors.Is(err, jobs.ErrInsufficientFunds):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
