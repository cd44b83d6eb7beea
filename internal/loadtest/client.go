package loadtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
}

// Client is a thin JSON client for the check-in API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the server at base.
func NewClient(base string, timeout time.Duration) *Client {
	return &Client{base: base, http: &http.Client{Timeout: timeout}}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := sonic.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = sonic.Unmarshal(raw, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

type taskStatus struct {
	Status string `json:"status"`
	Result struct {
		EventID int64 `json:"event_id"`
	} `json:"result"`
	Error string `json:"error"`
}

// CreateEvent submits an event and polls its task until it finishes.
func (c *Client) CreateEvent(ctx context.Context, name string, start, end time.Time, poll time.Duration) (int64, error) {
	var created struct {
		TaskID string `json:"task_id"`
	}
	in := map[string]any{"name": name, "start_time": start.UTC(), "end_time": end.UTC()}
	if err := c.do(ctx, http.MethodPost, "/api/event/create", in, &created); err != nil {
		return 0, err
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		var st taskStatus
		if err := c.do(ctx, http.MethodGet, "/api/event/status/"+created.TaskID, nil, &st); err != nil {
			return 0, err
		}
		switch st.Status {
		case "SUCCESS":
			return st.Result.EventID, nil
		case "FAILURE":
			return 0, fmt.Errorf("event task %s failed: %s", created.TaskID, st.Error)
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// CreateTeam creates a team and returns its id.
func (c *Client) CreateTeam(ctx context.Context, eventID int64, name string) (int64, error) {
	var out struct {
		TeamID int64 `json:"team_id"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/event/%d/team/create", eventID), map[string]string{"name": name}, &out)
	return out.TeamID, err
}

// Register creates a user and returns its id.
func (c *Client) Register(ctx context.Context, username, email, password string) (int64, error) {
	var out struct {
		UserID int64 `json:"user_id"`
	}
	in := map[string]string{"username": username, "email": email, "password": password}
	err := c.do(ctx, http.MethodPost, "/api/user/register", in, &out)
	return out.UserID, err
}

// Join adds userID to teamID and reports whether the user was already a
// member. A strict server answers a repeat join with already_member, which
// is reported the same way.
func (c *Client) Join(ctx context.Context, eventID, teamID, userID int64) (bool, error) {
	var out struct {
		AlreadyMember bool `json:"already_member"`
	}
	path := fmt.Sprintf("/api/event/%d/team/%d/join", eventID, teamID)
	err := c.do(ctx, http.MethodPost, path, map[string]int64{"user_id": userID}, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == "already_member" {
		return true, nil
	}
	return out.AlreadyMember, err
}

// CheckIn submits one check-in for every team of userID.
func (c *Client) CheckIn(ctx context.Context, eventID, userID int64, comment string) error {
	in := map[string]any{"user_id": userID, "comment": comment}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/event/%d/upload", eventID), in, nil)
}

// RankingEntry is one row of GET /api/event/{id}/ranking.
type RankingEntry struct {
	Rank     int    `json:"rank"`
	TeamID   int64  `json:"team_id"`
	TeamName string `json:"team_name"`
	Score    int64  `json:"score"`
	TeamSize int    `json:"team_size"`
}

// Ranking fetches the ranking of an event.
func (c *Client) Ranking(ctx context.Context, eventID int64) ([]RankingEntry, error) {
	var out struct {
		Rankings []RankingEntry `json:"rankings"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/event/%d/ranking", eventID), nil, &out)
	return out.Rankings, err
}
