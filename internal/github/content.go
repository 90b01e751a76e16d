package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
	"github.com/rs/zerolog"
)

const (
	fetchTimeout    = 10 * time.Second
	maxContentBytes = 2 << 20
)

// NewClient builds a go-github client. An empty token gives anonymous access;
// a non-empty apiURL targets GitHub Enterprise.
func NewClient(token, apiURL string) (*gh.Client, error) {
	client := gh.NewClient(&http.Client{Timeout: fetchTimeout})
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if apiURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(apiURL, apiURL)
		if err != nil {
			return nil, fmt.Errorf("configure github api url: %w", err)
		}
	}
	return client, nil
}

// ContentFetcher downloads tracker files. GitHub URLs go through the contents
// API; anything else is a plain GET.
type ContentFetcher struct {
	client     *gh.Client
	httpClient *http.Client
	attempts   int
	retryDelay time.Duration
	logger     zerolog.Logger
}

// NewContentFetcher creates a ContentFetcher. httpClient may be nil.
func NewContentFetcher(client *gh.Client, httpClient *http.Client, logger zerolog.Logger) *ContentFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: fetchTimeout}
	}
	return &ContentFetcher{
		client:     client,
		httpClient: httpClient,
		attempts:   defaultFetchAttempts,
		retryDelay: defaultRetryDelay,
		logger:     logger.With().Str("component", "github.content").Logger(),
	}
}

// WithAttempts returns a copy of f that tries each fetch at most n times.
// n <= 1 gives a single pass with no retry.
func (f *ContentFetcher) WithAttempts(n int) *ContentFetcher {
	if n < 1 {
		n = 1
	}
	c := *f
	c.attempts = n
	return &c
}

// Fetch returns the sanitized text at rawURL, retrying transient failures.
func (f *ContentFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", errors.New("content url is empty")
	}

	var content string
	err := retryWithBackoff(ctx, f.logger, f.attempts, f.retryDelay, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()

		var err error
		if loc, ok := ParseContentURL(rawURL); ok && f.client != nil {
			content, err = f.fetchContents(ctx, loc)
		} else {
			content, err = f.fetchPlain(ctx, rawURL)
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return SanitizeTracker(content), nil
}

func (f *ContentFetcher) fetchContents(ctx context.Context, loc ContentLocation) (string, error) {
	opts := &gh.RepositoryContentGetOptions{Ref: loc.Ref}
	file, _, _, err := f.client.Repositories.GetContents(ctx, loc.Owner, loc.Repo, loc.Path, opts)
	if err != nil {
		return "", fmt.Errorf("get contents %s/%s/%s@%s: %w", loc.Owner, loc.Repo, loc.Path, loc.Ref, err)
	}
	if file == nil {
		return "", fmt.Errorf("%s in %s/%s is not a file", loc.Path, loc.Owner, loc.Repo)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode contents of %s: %w", loc.Path, err)
	}

	f.logger.Debug().
		Str("repo", loc.Owner+"/"+loc.Repo).
		Str("path", loc.Path).
		Str("ref", loc.Ref).
		Int("bytes", len(content)).
		Msg("fetched repository content")
	return content, nil
}

func (f *ContentFetcher) fetchPlain(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &statusError{url: rawURL, code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxContentBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	return string(body), nil
}
