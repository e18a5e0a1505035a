/*
Package timr is the client for the Timr REST API (v0.2).

PURPOSE:
  Reads and writes working times and project times, lists working-time
  types, and looks up tasks.
  Repository adapts the client to allocation.Backend.

AUTHENTICATION:
  POST /login returns a bearer token with a validity. The token is served by
  an oauth2.ReuseTokenSource and attached by oauth2.Transport, so it is
  fetched lazily and renewed once it expires.

PAGINATION:
  List endpoints are cursor paginated: limit (max 500) and page_token in the
  query, {data, next_page_token} in the response. list() follows the cursor
  until an empty page or a missing token.

ERRORS:
  404                  -> allocation.NotFoundError
  400, 409, 422        -> allocation.ConflictError (remote rule rejected the write)
  anything else        -> allocation.UpstreamError
  transport failures   -> allocation.UpstreamError
  No request is retried.
*/
package timr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/ohrner-it/task-timr/allocation"
)

const (
	DefaultBaseURL  = "https://api.timr.com/v0.2"
	MaxPageSize     = 500
	DefaultTimeout  = 30 * time.Second
	defaultMaxPages = 1000
)

// Config configures a Client.
type Config struct {
	BaseURL   string
	CompanyID string
	Username  string
	Password  string
	PageSize  int
	Timeout   time.Duration

	// MaxPages guards list() against a cursor that never ends.
	MaxPages int

	// HTTPClient is the base client. Defaults to http.DefaultClient's
	// transport.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the Timr API as one configured user.
type Client struct {
	http     *http.Client
	baseURL  string
	pageSize int
	maxPages int
	auth     *loginSource
	tokens   oauth2.TokenSource
	logger   *slog.Logger
}

// New creates a Client. No request is made until the first call.
func New(cfg Config) (*Client, error) {
	if cfg.CompanyID == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, &allocation.ValidationError{Field: "timr", Message: "company id, username and password are required"}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 || cfg.PageSize > MaxPageSize {
		cfg.PageSize = MaxPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	auth := &loginSource{
		http:      &http.Client{Transport: base.Transport, Timeout: cfg.Timeout},
		baseURL:   baseURL,
		companyID: cfg.CompanyID,
		username:  cfg.Username,
		password:  cfg.Password,
		timeout:   cfg.Timeout,
	}
	tokens := oauth2.ReuseTokenSource(nil, auth)

	return &Client{
		http: &http.Client{
			Transport: &oauth2.Transport{Source: tokens, Base: base.Transport},
			Timeout:   cfg.Timeout,
		},
		baseURL:  baseURL,
		pageSize: cfg.PageSize,
		maxPages: cfg.MaxPages,
		auth:     auth,
		tokens:   tokens,
		logger:   cfg.Logger,
	}, nil
}

// UserID returns the id of the logged-in user, logging in if needed.
func (c *Client) UserID(ctx context.Context) (string, error) {
	if _, err := c.tokens.Token(); err != nil {
		return "", err
	}
	return c.auth.currentUserID(), nil
}

// =============================================================================
// WORKING TIMES
// =============================================================================

func (c *Client) GetWorkingTime(ctx context.Context, id string) (WorkingTime, error) {
	var out WorkingTime
	err := c.do(ctx, http.MethodGet, "/working-times/"+url.PathEscape(id), nil, nil, &out)
	if err != nil {
		return WorkingTime{}, withKind(err, "working_time", id)
	}
	return out, nil
}

// ListWorkingTimes returns the user's working times starting between the
// two dates, inclusive.
func (c *Client) ListWorkingTimes(ctx context.Context, from, to time.Time) ([]WorkingTime, error) {
	q, err := c.rangeQuery(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return list[WorkingTime](ctx, c, "/working-times", q)
}

// CreateWorkingTime records a closed working time with one manual break of
// breakMinutes at its start.
func (c *Client) CreateWorkingTime(ctx context.Context, start, end time.Time, breakMinutes int, typeID string) (WorkingTime, error) {
	userID, err := c.UserID(ctx)
	if err != nil {
		return WorkingTime{}, err
	}
	body := workingTimeCreate{
		Start:             timestamp(start),
		End:               timestamp(end),
		Status:            "changeable",
		Changed:           true,
		WorkingTimeTypeID: typeID,
		UserID:            userID,
	}
	if breakMinutes > 0 {
		body.BreakTimes = []breakTime{{Type: "manual", Start: timestamp(start), DurationMinutes: breakMinutes}}
	}
	var out WorkingTime
	if err := c.do(ctx, http.MethodPost, "/working-times", nil, body, &out); err != nil {
		return WorkingTime{}, err
	}
	return out, nil
}

// UpdateWorkingTime overwrites a working time. A nil end keeps it running;
// an empty typeID keeps its type.
func (c *Client) UpdateWorkingTime(ctx context.Context, id string, start time.Time, end *time.Time, breakMinutes int, typeID string) (WorkingTime, error) {
	body := workingTimeUpdate{
		Start:             timestamp(start),
		Changed:           true,
		WorkingTimeTypeID: typeID,
		BreakTimes:        []breakTime{},
	}
	if end != nil {
		body.End = timestamp(*end)
	}
	if breakMinutes > 0 {
		body.BreakTimes = []breakTime{{Type: "manual", DurationMinutes: breakMinutes}}
	}
	var out WorkingTime
	if err := c.do(ctx, http.MethodPatch, "/working-times/"+url.PathEscape(id), nil, body, &out); err != nil {
		return WorkingTime{}, withKind(err, "working_time", id)
	}
	return out, nil
}

func (c *Client) DeleteWorkingTime(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/working-times/"+url.PathEscape(id), nil, nil, nil)
	return withKind(err, "working_time", id)
}

// ListWorkingTimeTypes returns the account's non-archived working-time
// types.
func (c *Client) ListWorkingTimeTypes(ctx context.Context) ([]WorkingTimeType, error) {
	q := url.Values{}
	q.Set("archived", "false")
	return list[WorkingTimeType](ctx, c, "/working-time-types", q)
}

// =============================================================================
// PROJECT TIMES
// =============================================================================

// ListProjectTimes returns the user's project times starting between the two
// dates, inclusive.
func (c *Client) ListProjectTimes(ctx context.Context, from, to time.Time) ([]ProjectTime, error) {
	q, err := c.rangeQuery(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return list[ProjectTime](ctx, c, "/project-times", q)
}

func (c *Client) CreateProjectTime(ctx context.Context, taskID string, start, end time.Time) (ProjectTime, error) {
	userID, err := c.UserID(ctx)
	if err != nil {
		return ProjectTime{}, err
	}
	body := projectTimeCreate{
		TaskID:  taskID,
		Start:   timestamp(start),
		End:     timestamp(end),
		Status:  "changeable",
		Changed: true,
		UserID:  userID,
	}
	var out ProjectTime
	if err := c.do(ctx, http.MethodPost, "/project-times", nil, body, &out); err != nil {
		return ProjectTime{}, withTask(withKind(err, "task", taskID), taskID)
	}
	return out, nil
}

func (c *Client) UpdateProjectTime(ctx context.Context, id string, start, end time.Time) (ProjectTime, error) {
	body := projectTimeUpdate{Start: timestamp(start), End: timestamp(end), Changed: true}
	var out ProjectTime
	if err := c.do(ctx, http.MethodPatch, "/project-times/"+url.PathEscape(id), nil, body, &out); err != nil {
		return ProjectTime{}, withKind(err, "project_time", id)
	}
	return out, nil
}

// DeleteProjectTime deletes a project time. A project time that is already
// gone counts as deleted.
func (c *Client) DeleteProjectTime(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/project-times/"+url.PathEscape(id), nil, nil, nil)
	if allocation.IsNotFound(err) {
		c.logger.Debug("project time already deleted", "project_time_id", id)
		return nil
	}
	return err
}

// =============================================================================
// TASKS
// =============================================================================

func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return Task{}, withKind(err, "task", id)
	}
	return out, nil
}

// ListTasks returns all tasks, filtered by name when name has at least three
// characters.
func (c *Client) ListTasks(ctx context.Context, name string) ([]Task, error) {
	q := url.Values{}
	if len([]rune(name)) >= 3 {
		q.Set("name", name)
	}
	return list[Task](ctx, c, "/tasks", q)
}

// =============================================================================
// TRANSPORT
// =============================================================================

func (c *Client) rangeQuery(ctx context.Context, from, to time.Time) (url.Values, error) {
	userID, err := c.UserID(ctx)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("start_from", from.Format(time.DateOnly))
	q.Set("start_to", to.Format(time.DateOnly))
	if userID != "" {
		q.Set("user", userID)
	}
	return q, nil
}

// list follows the cursor of a paginated endpoint and returns every item.
func list[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("limit", strconv.Itoa(c.pageSize))

	var all []T
	for n := 1; ; n++ {
		var p page[T]
		if err := c.do(ctx, http.MethodGet, path, q, nil, &p); err != nil {
			return nil, err
		}
		if len(p.Data) == 0 {
			break
		}
		all = append(all, p.Data...)

		if p.NextPageToken == "" {
			break
		}
		if n >= c.maxPages {
			c.logger.Warn("page limit reached", "path", path, "pages", n, "items", len(all))
			break
		}
		q.Set("page_token", p.NextPageToken)
	}
	return all, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	op := method + " " + path

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		var upstream *allocation.UpstreamError
		if errors.As(err, &upstream) {
			return upstream
		}
		return &allocation.UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("timr request", "op", op, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode >= 300 {
		return statusError(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &allocation.UpstreamError{Op: op, StatusCode: resp.StatusCode, Message: "decode response", Err: err}
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	msg := readMessage(resp)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return &allocation.NotFoundError{Kind: "resource", ID: op}
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return &allocation.ConflictError{Message: msg}
	default:
		return &allocation.UpstreamError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}
}

// readMessage extracts {"message": ...} from an error body, falling back to
// the raw text.
func readMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e apiError
	if json.Unmarshal(raw, &e) == nil && e.Message != "" {
		return e.Message
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return http.StatusText(resp.StatusCode)
	}
	return text
}

// withKind names the missing resource on a NotFoundError.
func withKind(err error, kind, id string) error {
	var nf *allocation.NotFoundError
	if errors.As(err, &nf) {
		return &allocation.NotFoundError{Kind: kind, ID: id}
	}
	return err
}

// withTask attaches the task id to a ConflictError.
func withTask(err error, taskID string) error {
	var c *allocation.ConflictError
	if errors.As(err, &c) && c.TaskID == "" {
		return &allocation.ConflictError{TaskID: allocation.TaskID(taskID), Message: c.Message}
	}
	return err
}
