package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cartlens/cartlens/internal/httpkit"
)

// FileInfo describes one entry in the remote folder store.
type FileInfo struct {
	// ID is the dataset identifier: the file name without its extension
	// ("orders.csv" → "orders").
	ID string `json:"id"`
	// Name is the full file name, including the extension that selects
	// the parser.
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Source is the boundary to the remote folder-like store. The provider
// only needs listing, raw content, and bytes it can fingerprint.
type Source interface {
	// List enumerates the datasets visible in the store.
	List(ctx context.Context) ([]FileInfo, error)

	// Fetch returns the file name and raw content for an identifier.
	// Returns *NotFoundError if the identifier has no entry and
	// *SourceUnavailableError on transient failure.
	Fetch(ctx context.Context, id string) (name string, data []byte, err error)
}

// HTTPSource reads datasets from an HTTP folder endpoint: a JSON listing
// at the base URL and raw file content at <base>/<name>.
type HTTPSource struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPSource creates a source for the given folder endpoint. The
// client retries transient dial failures; request-level retry policy
// (exponential backoff) lives in the provider.
func NewHTTPSource(baseURL, token string, logger *slog.Logger) *HTTPSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		logger:  logger.With("source", "http"),
		client: httpkit.NewClient(
			httpkit.WithTimeout(0), // per-request ctx deadlines
			httpkit.WithRetry(2, 500*time.Millisecond),
			httpkit.WithLogger(logger),
		),
	}
}

// List fetches the folder listing.
func (s *HTTPSource) List(ctx context.Context) ([]FileInfo, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &SourceUnavailableError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 1024)
		return nil, &SourceUnavailableError{
			Err: fmt.Errorf("listing returned %d: %s", resp.StatusCode, errBody),
		}
	}

	var entries []FileInfo
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = strings.TrimSuffix(entries[i].Name, path.Ext(entries[i].Name))
		}
	}

	s.logger.Debug("listed store", "entries", len(entries))
	return entries, nil
}

// Fetch resolves id against the listing and downloads the raw content.
func (s *HTTPSource) Fetch(ctx context.Context, id string) (string, []byte, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return "", nil, err
	}

	var name string
	for _, e := range entries {
		if e.ID == id || e.Name == id {
			name = e.Name
			break
		}
	}
	if name == "" {
		return "", nil, &NotFoundError{ID: id}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+"/"+url.PathEscape(name), nil)
	if err != nil {
		return "", nil, fmt.Errorf("create request: %w", err)
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", nil, &SourceUnavailableError{ID: id, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		httpkit.DrainAndClose(resp.Body, 1024)
		return "", nil, &NotFoundError{ID: id}
	case resp.StatusCode != http.StatusOK:
		errBody := httpkit.ReadErrorBody(resp.Body, 1024)
		return "", nil, &SourceUnavailableError{
			ID:  id,
			Err: fmt.Errorf("fetch returned %d: %s", resp.StatusCode, errBody),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, &SourceUnavailableError{ID: id, Err: err}
	}

	s.logger.Debug("fetched dataset", "id", id, "name", name, "bytes", len(data))
	return name, data, nil
}

func (s *HTTPSource) authorize(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}
