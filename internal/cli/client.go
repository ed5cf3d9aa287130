package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"payday/internal/auth"
	"payday/internal/jobs"
)

// APIError is a non-2xx response. RetryAfter is set when the server
// rejected the request because a cooldown is still running.
type APIError struct {
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// CooldownLeft reports the remaining cooldown carried by err, if any.
func CooldownLeft(err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests {
		return apiErr.RetryAfter, true
	}
	return 0, false
}

// Unreachable reports whether err means the request never got an answer
// from the server, as opposed to a rejection.
func Unreachable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	return !errors.As(err, &apiErr)
}

type Level struct {
	Level           int        `json:"level"`
	Title           string     `json:"title"`
	Salary          jobs.Range `json:"salary"`
	CooldownSeconds int64      `json:"cooldown_seconds"`
	PromotionChance float64    `json:"promotion_chance"`
	GuaranteedAfter int        `json:"guaranteed_after"`
}

type Profession struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Emoji   string  `json:"emoji"`
	CanFine bool    `json:"can_fine"`
	Trap    bool    `json:"trap"`
	Levels  []Level `json:"levels"`
}

type Status struct {
	Participant      jobs.Participant `json:"participant"`
	Profession       string           `json:"profession"`
	Name             string           `json:"name"`
	Emoji            string           `json:"emoji"`
	Level            int              `json:"level"`
	MaxLevel         int              `json:"max_level"`
	Title            string           `json:"title"`
	NextTitle        string           `json:"next_title"`
	TimesWorked      int              `json:"times_worked"`
	GuaranteedAfter  int              `json:"guaranteed_after"`
	Salary           jobs.Range       `json:"salary"`
	CooldownSeconds  int64            `json:"cooldown_seconds"`
	RemainingSeconds int64            `json:"remaining_seconds"`
	CanFine          bool             `json:"can_fine"`
}

func (s Status) Remaining() time.Duration {
	return time.Duration(s.RemainingSeconds) * time.Second
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) Signup(ctx context.Context, email, password, username string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", map[string]any{
		"email":    email,
		"password": password,
		"username": username,
	}, &out, nil)
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out, nil)
	return out, err
}

func (c *Client) Register(ctx context.Context, accessToken, username string) (jobs.Participant, error) {
	var out jobs.Participant
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/register", accessToken, map[string]any{
		"username": username,
	}, &out, nil)
	return out, err
}

func (c *Client) Professions(ctx context.Context) ([]Profession, error) {
	var out struct {
		Professions []Profession `json:"professions"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/professions", "", nil, &out, nil)
	return out.Professions, err
}

func (c *Client) Status(ctx context.Context, accessToken string) (Status, error) {
	var out Status
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/job", accessToken, nil, &out, nil)
	return out, err
}

func (c *Client) SelectProfession(ctx context.Context, accessToken, profession string, replace bool) (jobs.Record, error) {
	var out jobs.Record
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/job", accessToken, map[string]any{
		"profession": profession,
		"replace":    replace,
	}, &out, nil)
	return out, err
}

func (c *Client) Resign(ctx context.Context, accessToken string) error {
	return c.jsonRequest(ctx, http.MethodDelete, "/v1/job", accessToken, nil, nil, nil)
}

// Work performs one work action, or a fine when target is set. idem is sent
// as the Idempotency-Key so a retried request is never paid twice.
func (c *Client) Work(ctx context.Context, accessToken, target, idem string) (jobs.Outcome, error) {
	var in map[string]any
	if strings.TrimSpace(target) != "" {
		in = map[string]any{"target": target}
	}
	var out jobs.Outcome
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/work", accessToken, in, &out, headers("Idempotency-Key", idem))
	return out, err
}

func (c *Client) FineStats(ctx context.Context, accessToken string, since time.Time) (jobs.FineStats, error) {
	var out jobs.FineStats
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/fines/stats"+sinceQuery(since, nil), accessToken, nil, &out, nil)
	return out, err
}

func (c *Client) AdminFineStats(ctx context.Context, adminToken, actor string, since time.Time) (jobs.FineStats, error) {
	q := url.Values{}
	if actor != "" {
		q.Set("actor", actor)
	}
	var out jobs.FineStats
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/admin/fines/stats"+sinceQuery(since, q), "", nil, &out, headers("X-Admin-Token", adminToken))
	return out, err
}

func (c *Client) ResetCooldown(ctx context.Context, adminToken, participant, action string) (bool, error) {
	var out struct {
		Cleared bool `json:"cleared"`
	}
	path := "/v1/admin/cooldowns/" + url.PathEscape(participant) + "/" + url.PathEscape(action)
	err := c.jsonRequest(ctx, http.MethodDelete, path, "", nil, &out, headers("X-Admin-Token", adminToken))
	return out.Cleared, err
}

func (c *Client) PurgeCooldowns(ctx context.Context, adminToken string) (int64, error) {
	var out struct {
		Purged int64 `json:"purged"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/cooldowns/purge", "", nil, &out, headers("X-Admin-Token", adminToken))
	return out.Purged, err
}

func (c *Client) SetBanned(ctx context.Context, adminToken, participant string, banned bool) error {
	return c.jsonRequest(ctx, http.MethodPut, "/v1/admin/participants/"+url.PathEscape(participant)+"/ban", "", map[string]any{
		"banned": banned,
	}, nil, headers("X-Admin-Token", adminToken))
}

func headers(kv ...string) map[string]string {
	out := map[string]string{}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			out[kv[i]] = kv[i+1]
		}
	}
	return out
}

func sinceQuery(since time.Time, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any, extra map[string]string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var payload struct {
		Error             string `json:"error"`
		RetryAfterSeconds int64  `json:"retry_after_seconds"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Error != "" {
			apiErr.Message = payload.Error
		}
		apiErr.RetryAfter = time.Duration(payload.RetryAfterSeconds) * time.Second
	}
	return apiErr
}
