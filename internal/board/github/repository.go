// Package github implements the status store against the GitHub
// Contents API. Reads return the file content plus its blob sha; writes
// are conditioned on that sha, which gives the optimistic-concurrency
// contract the edit flow relies on.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cedadev/ceda-status-bot/internal/board"
	"github.com/cedadev/ceda-status-bot/internal/domain"
	"github.com/cedadev/ceda-status-bot/internal/pkg/ctxlog"
	"github.com/cedadev/ceda-status-bot/internal/pkg/metrics"
)

const (
	defaultBaseURL = "https://api.github.com"
	defaultBranch  = "main"
	defaultPath    = "status.json"
	defaultTimeout = 10 * time.Second

	acceptHeader = "application/vnd.github+json"
)

// Config holds GitHub repository coordinates and credentials.
type Config struct {
	Owner   string
	Repo    string
	Path    string        // file path within the repository
	Branch  string        // branch to read and commit to
	Token   string        // access token with contents write permission
	BaseURL string        // overridable for tests
	Timeout time.Duration // per-request timeout
}

// Repository is a board.Repository backed by a file in a GitHub repo.
type Repository struct {
	config     Config
	httpClient *http.Client
}

// NewRepository creates a new GitHub-backed status repository.
func NewRepository(config Config) (*Repository, error) {
	if config.Owner == "" || config.Repo == "" {
		return nil, errors.New("github repository: owner and repo are required")
	}
	if config.Token == "" {
		return nil, errors.New("github repository: token is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Branch == "" {
		config.Branch = defaultBranch
	}
	if config.Path == "" {
		config.Path = defaultPath
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &Repository{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

type contentsResponse struct {
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

type commitRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch"`
}

type commitResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

type apiError struct {
	Message string `json:"message"`
}

// Fetch retrieves and parses the current dataset. A missing file yields
// an empty dataset with no revision, so the first commit creates it.
func (r *Repository) Fetch(ctx context.Context) (*domain.Dataset, error) {
	start := time.Now()

	ds, err := r.fetch(ctx)

	metrics.StoreOperationDuration.WithLabelValues("fetch").Observe(time.Since(start).Seconds())
	metrics.StoreOperationsTotal.WithLabelValues("fetch", outcome(err)).Inc()
	return ds, err
}

func (r *Repository) fetch(ctx context.Context) (*domain.Dataset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.contentsURL()+"?ref="+url.QueryEscape(r.config.Branch), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	r.setHeaders(req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", board.ErrStoreUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", board.ErrStoreUnavailable, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		ctxlog.FromContext(ctx).Warn("status file not found, starting from empty dataset",
			"path", r.config.Path,
			"branch", r.config.Branch,
		)
		return &domain.Dataset{Services: []domain.Service{}}, nil
	default:
		return nil, r.statusError(resp.StatusCode, body)
	}

	var contents contentsResponse
	if err := json.Unmarshal(body, &contents); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", board.ErrStoreUnavailable, err)
	}

	// The contents API wraps base64 at 60 columns.
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(contents.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("%w: decode content: %v", board.ErrStoreUnavailable, err)
	}

	ds, err := board.Parse(raw)
	if err != nil {
		return nil, err
	}
	ds.Revision = contents.SHA
	return ds, nil
}

// Commit serializes the dataset and writes it back conditioned on
// ds.Revision. Every successful commit creates a new repository commit.
func (r *Repository) Commit(ctx context.Context, ds *domain.Dataset, author string) (string, error) {
	start := time.Now()

	rev, err := r.commit(ctx, ds, author)

	metrics.StoreOperationDuration.WithLabelValues("commit").Observe(time.Since(start).Seconds())
	metrics.StoreOperationsTotal.WithLabelValues("commit", outcome(err)).Inc()
	return rev, err
}

func (r *Repository) commit(ctx context.Context, ds *domain.Dataset, author string) (string, error) {
	payload := commitRequest{
		Message: fmt.Sprintf("Update status (via Slack by %s)", author),
		Content: base64.StdEncoding.EncodeToString(board.Serialize(ds)),
		SHA:     ds.Revision,
		Branch:  r.config.Branch,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.contentsURL(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	r.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", board.ErrStoreUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", board.ErrStoreUnavailable, err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var commit commitResponse
		if err := json.Unmarshal(respBody, &commit); err != nil {
			return "", fmt.Errorf("%w: decode response: %v", board.ErrStoreUnavailable, err)
		}
		ctxlog.FromContext(ctx).Info("dataset committed",
			"revision", commit.Content.SHA,
			"author", author,
		)
		return commit.Content.SHA, nil

	// The contents API reports a stale or missing sha as 409 or 422.
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return "", fmt.Errorf("%w: %s", board.ErrConflict, apiMessage(respBody))

	default:
		return "", r.statusError(resp.StatusCode, respBody)
	}
}

// Ping verifies the repository is reachable with the configured token.
func (r *Repository) Ping(ctx context.Context) error {
	u := fmt.Sprintf("%s/repos/%s/%s", r.config.BaseURL, r.config.Owner, r.config.Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	r.setHeaders(req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", board.ErrStoreUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", board.ErrStoreUnavailable, resp.StatusCode)
	}
	return nil
}

func (r *Repository) contentsURL() string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		r.config.BaseURL, r.config.Owner, r.config.Repo, r.config.Path)
}

func (r *Repository) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+r.config.Token)
	req.Header.Set("Accept", acceptHeader)
}

func (r *Repository) statusError(status int, body []byte) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: access denied (%d): %s", board.ErrStoreUnavailable, status, apiMessage(body))
	default:
		return fmt.Errorf("%w: unexpected status %d: %s", board.ErrStoreUnavailable, status, apiMessage(body))
	}
}

func apiMessage(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return string(body)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, board.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
