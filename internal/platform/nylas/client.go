package nylas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/platform/envutil"
	"github.com/yungbote/inboxpilot-backend/internal/platform/httpx"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

// Client reads messages from the Nylas v3 REST API.
type Client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	pageSize   int
	maxFetch   int
	maxRetries int
	httpClient *http.Client
}

// NewFromEnv returns (nil, nil) when NYLAS_API_KEY is unset.
func NewFromEnv(log *logger.Logger) (*Client, error) {
	apiKey := envutil.String("NYLAS_API_KEY", "")
	if apiKey == "" {
		return nil, nil
	}
	return &Client{
		log:        log.With("client", "Nylas"),
		baseURL:    strings.TrimRight(envutil.String("NYLAS_API_URI", "https://api.us.nylas.com"), "/"),
		apiKey:     apiKey,
		pageSize:   envutil.Int("NYLAS_PAGE_SIZE", 50),
		maxFetch:   envutil.Int("NYLAS_MAX_FETCH", 200),
		maxRetries: envutil.Int("NYLAS_MAX_RETRIES", 2),
		httpClient: &http.Client{Timeout: envutil.Seconds("NYLAS_TIMEOUT_SECONDS", 30)},
	}, nil
}

type participant struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type message struct {
	ID      string        `json:"id"`
	GrantID string        `json:"grant_id"`
	Subject string        `json:"subject"`
	From    []participant `json:"from"`
	Body    string        `json:"body"`
	Date    int64         `json:"date"`
}

type listResponse struct {
	Data       []message `json:"data"`
	NextCursor string    `json:"next_cursor"`
}

// FetchRecent lists messages received after since, newest first, up to the
// configured cap.
func (c *Client) FetchRecent(ctx context.Context, grantID string, since time.Time) ([]types.RawMessage, error) {
	q := url.Values{}
	q.Set("received_after", strconv.FormatInt(since.Unix(), 10))
	return c.list(ctx, grantID, q, c.maxFetch)
}

// FetchSent lists up to limit messages from the grant's sent folder, newest
// first.
func (c *Client) FetchSent(ctx context.Context, grantID string, limit int) ([]types.RawMessage, error) {
	if limit <= 0 || limit > c.maxFetch {
		limit = c.maxFetch
	}
	q := url.Values{}
	q.Set("in", "SENT")
	return c.list(ctx, grantID, q, limit)
}

func (c *Client) list(ctx context.Context, grantID string, q url.Values, limit int) ([]types.RawMessage, error) {
	if grantID == "" {
		return nil, fmt.Errorf("nylas: grant id required")
	}
	out := make([]types.RawMessage, 0, c.pageSize)
	cursor := ""
	for len(out) < limit {
		q.Set("limit", strconv.Itoa(c.pageSize))
		q.Del("page_token")
		if cursor != "" {
			q.Set("page_token", cursor)
		}
		var resp listResponse
		path := "/v3/grants/" + url.PathEscape(grantID) + "/messages?" + q.Encode()
		if err := c.get(ctx, path, &resp); err != nil {
			return nil, err
		}
		for _, m := range resp.Data {
			out = append(out, toRaw(m, grantID))
			if len(out) >= limit {
				break
			}
		}
		if resp.NextCursor == "" || len(resp.Data) == 0 {
			break
		}
		cursor = resp.NextCursor
	}
	return out, nil
}

func toRaw(m message, grantID string) types.RawMessage {
	from := ""
	if len(m.From) > 0 {
		from = m.From[0].Email
	}
	g := m.GrantID
	if g == "" {
		g = grantID
	}
	rm := types.RawMessage{ID: m.ID, GrantID: g, Subject: m.Subject, From: from, Body: m.Body}
	if m.Date > 0 {
		t := time.Unix(m.Date, 0).UTC()
		rm.ReceivedAt = &t
	}
	return rm
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	backoff := 500 * time.Millisecond
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err == nil {
			raw, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			switch {
			case readErr != nil:
				err = readErr
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				err = &httpx.StatusError{Service: "nylas", StatusCode: resp.StatusCode, Body: string(raw)}
			default:
				if uErr := json.Unmarshal(raw, out); uErr != nil {
					return fmt.Errorf("nylas decode: %w", uErr)
				}
				return nil
			}
		}
		if !httpx.IsRetryableError(err) || attempt >= c.maxRetries {
			return err
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("Nylas request retrying", "attempt", attempt+1, "sleep", sleepFor.String(), "error", err.Error())
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return err
		}
		backoff *= 2
	}
}
