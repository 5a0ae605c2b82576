package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cedadev/ceda-status-bot/internal/board"
	"github.com/cedadev/ceda-status-bot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statusContent = `[
  {
    "id": "jasmin",
    "affectedServices": "JASMIN",
    "status": "down",
    "updates": [
      {
        "date": "2024-05-20T14:30",
        "status": "down",
        "details": "Storage outage"
      }
    ]
  }
]
`

func newTestRepository(t *testing.T, handler http.HandlerFunc) (*Repository, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	repo, err := NewRepository(Config{
		Owner:   "cedadev",
		Repo:    "status",
		Token:   "test-token",
		BaseURL: server.URL,
	})
	require.NoError(t, err)
	return repo, server
}

func TestNewRepository_RequiresCoordinates(t *testing.T) {
	_, err := NewRepository(Config{Repo: "status", Token: "t"})
	assert.Error(t, err)

	_, err = NewRepository(Config{Owner: "cedadev", Repo: "status"})
	assert.Error(t, err)
}

func TestNewRepository_Defaults(t *testing.T) {
	repo, err := NewRepository(Config{Owner: "cedadev", Repo: "status", Token: "t"})
	require.NoError(t, err)

	assert.Equal(t, defaultBaseURL, repo.config.BaseURL)
	assert.Equal(t, defaultBranch, repo.config.Branch)
	assert.Equal(t, defaultPath, repo.config.Path)
	assert.Equal(t, defaultTimeout, repo.config.Timeout)
}

func TestFetch_ReturnsDatasetWithRevision(t *testing.T) {
	repo, _ := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/repos/cedadev/status/contents/status.json", r.URL.Path)
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]string{
			"content": base64.StdEncoding.EncodeToString([]byte(statusContent)),
			"sha":     "abc123",
		})
	})

	ds, err := repo.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "abc123", ds.Revision)
	require.Len(t, ds.Services, 1)
	assert.Equal(t, "jasmin", ds.Services[0].ID)
}

func TestFetch_MissingFileYieldsEmptyDataset(t *testing.T) {
	repo, _ := newTestRepository(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "Not Found"}`))
	})

	ds, err := repo.Fetch(context.Background())
	require.NoError(t, err)

	assert.Empty(t, ds.Services)
	assert.Empty(t, ds.Revision)
}

func TestFetch_AccessDenied(t *testing.T) {
	repo, _ := newTestRepository(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message": "Bad credentials"}`))
	})

	_, err := repo.Fetch(context.Background())
	assert.ErrorIs(t, err, board.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "Bad credentials")
}

func TestFetch_MalformedContentIsParseError(t *testing.T) {
	repo, _ := newTestRepository(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"content": base64.StdEncoding.EncodeToString([]byte(`{"not": "a list"}`)),
			"sha":     "abc123",
		})
	})

	_, err := repo.Fetch(context.Background())

	var parseErr *board.ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestCommit_SendsConditionalWriteAndReturnsNewSHA(t *testing.T) {
	var received commitRequest
	repo, _ := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/repos/cedadev/status/contents/status.json", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		_, _ = w.Write([]byte(`{"content": {"sha": "def456"}}`))
	})

	ds, err := board.Parse([]byte(statusContent))
	require.NoError(t, err)
	ds.Revision = "abc123"

	rev, err := repo.Commit(context.Background(), ds, "Alice Example")
	require.NoError(t, err)

	assert.Equal(t, "def456", rev)
	assert.Equal(t, "Update status (via Slack by Alice Example)", received.Message)
	assert.Equal(t, "abc123", received.SHA)
	assert.Equal(t, "main", received.Branch)

	raw, err := base64.StdEncoding.DecodeString(received.Content)
	require.NoError(t, err)
	assert.Equal(t, statusContent, string(raw))
}

func TestCommit_NewFileOmitsSHA(t *testing.T) {
	var rawBody map[string]any
	repo, _ := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rawBody))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"content": {"sha": "first"}}`))
	})

	rev, err := repo.Commit(context.Background(), &domain.Dataset{Services: []domain.Service{}}, "Alice")
	require.NoError(t, err)

	assert.Equal(t, "first", rev)
	assert.NotContains(t, rawBody, "sha")
}

func TestCommit_StaleSHAIsConflict(t *testing.T) {
	for _, status := range []int{http.StatusConflict, http.StatusUnprocessableEntity} {
		repo, _ := newTestRepository(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"message": "status.json does not match"}`))
		})

		ds := &domain.Dataset{Services: []domain.Service{}, Revision: "stale"}
		_, err := repo.Commit(context.Background(), ds, "Alice")
		assert.ErrorIs(t, err, board.ErrConflict, "status %d", status)
	}
}

func TestCommit_ServerError(t *testing.T) {
	repo, _ := newTestRepository(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	ds := &domain.Dataset{Services: []domain.Service{}}
	_, err := repo.Commit(context.Background(), ds, "Alice")
	assert.ErrorIs(t, err, board.ErrStoreUnavailable)
}

func TestFetch_NetworkError(t *testing.T) {
	repo, server := newTestRepository(t, func(http.ResponseWriter, *http.Request) {})
	server.Close()

	_, err := repo.Fetch(context.Background())
	assert.ErrorIs(t, err, board.ErrStoreUnavailable)
}

func TestPing(t *testing.T) {
	repo, _ := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/cedadev/status", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	assert.NoError(t, repo.Ping(context.Background()))
}

func TestPing_Unreachable(t *testing.T) {
	repo, _ := newTestRepository(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	assert.ErrorIs(t, repo.Ping(context.Background()), board.ErrStoreUnavailable)
}
