package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

const (
	githubAPIBase    = "https://api.github.com"
	githubAPITimeout = 30 * time.Second

	// DefaultUpdateCheckInterval is the minimum age of the last successful
	// check before an unforced check hits the network again.
	DefaultUpdateCheckInterval = 7 * 24 * time.Hour
)

// ErrUpdateCheckNotDue is returned by Check when an unforced check is rate limited.
var ErrUpdateCheckNotDue = errors.New("update check not due")

// githubRelease is the subset of the releases/latest response we read.
type githubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// ReleaseChecker implements domain.UpdateChannel against GitHub releases.
type ReleaseChecker struct {
	client   *retryablehttp.Client
	baseURL  string
	owner    string
	repo     string
	current  string
	interval time.Duration
	store    domain.UpdateCheckStore
	now      func() time.Time
	logger   *zap.Logger
}

// NewReleaseChecker creates a checker for owner/repo.
func NewReleaseChecker(owner, repo, current string, interval time.Duration, store domain.UpdateCheckStore, logger *zap.Logger) *ReleaseChecker {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 30 * time.Second
	client.Logger = nil // Disable logging

	return NewReleaseCheckerWithClient(client, githubAPIBase, owner, repo, current, interval, store, time.Now, logger)
}

// NewReleaseCheckerWithClient creates a checker with injected dependencies (for testing).
func NewReleaseCheckerWithClient(
	client *retryablehttp.Client,
	baseURL, owner, repo, current string,
	interval time.Duration,
	store domain.UpdateCheckStore,
	now func() time.Time,
	logger *zap.Logger,
) *ReleaseChecker {
	if interval <= 0 {
		interval = DefaultUpdateCheckInterval
	}
	return &ReleaseChecker{
		client:   client,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		owner:    owner,
		repo:     repo,
		current:  strings.TrimPrefix(current, "v"),
		interval: interval,
		store:    store,
		now:      now,
		logger:   logger,
	}
}

// CheckForUpdate runs Check on its own goroutine and reports through exactly
// one callback. A rate-limited unforced check reports nothing.
func (c *ReleaseChecker) CheckForUpdate(
	ctx context.Context,
	force bool,
	onUpToDate func(current string),
	onUpdateAvailable func(release domain.Release),
	onError func(err error),
) {
	go func() {
		release, err := c.Check(ctx, force)
		switch {
		case errors.Is(err, ErrUpdateCheckNotDue):
			c.logger.Debug("update check skipped", zap.Duration("interval", c.interval))
		case err != nil:
			c.logger.Warn("update check failed", zap.Error(err))
			if onError != nil {
				onError(err)
			}
		case release != nil:
			c.logger.Info("update available",
				zap.String("current", c.current),
				zap.String("latest", release.Version))
			if onUpdateAvailable != nil {
				onUpdateAvailable(*release)
			}
		default:
			if onUpToDate != nil {
				onUpToDate(c.current)
			}
		}
	}()
}

// Check queries the latest release. It returns nil when the running version
// is current.
func (c *ReleaseChecker) Check(ctx context.Context, force bool) (*domain.Release, error) {
	if !force && !c.due() {
		return nil, ErrUpdateCheckNotDue
	}

	latest, err := c.latestRelease(ctx)
	if err != nil {
		return nil, err
	}

	if c.store != nil {
		if err := c.store.SetLastUpdateCheck(c.now()); err != nil {
			c.logger.Warn("failed to record update check", zap.Error(err))
		}
	}

	newer, err := isNewerVersion(latest.TagName, c.current)
	if err != nil {
		return nil, err
	}
	if !newer {
		return nil, nil
	}
	return &domain.Release{
		Version: strings.TrimPrefix(latest.TagName, "v"),
		TagName: latest.TagName,
		URL:     latest.HTMLURL,
	}, nil
}

func (c *ReleaseChecker) due() bool {
	if c.store == nil {
		return true
	}
	last, err := c.store.LastUpdateCheck()
	if err != nil {
		c.logger.Warn("failed to read last update check", zap.Error(err))
		return true
	}
	return last.IsZero() || c.now().Sub(last) >= c.interval
}

func (c *ReleaseChecker) latestRelease(ctx context.Context) (*githubRelease, error) {
	ctx, cancel := context.WithTimeout(ctx, githubAPITimeout)
	defer cancel()

	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.baseURL, c.owner, c.repo)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "kioskd/"+c.current)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to parse release: %w", err)
	}
	if release.TagName == "" {
		return nil, errors.New("release has no tag")
	}
	return &release, nil
}

// isNewerVersion reports whether latest is a higher semantic version than current.
// A development build ("dev" or unparsable) is never considered current.
func isNewerVersion(latest, current string) (bool, error) {
	lv, err := semver.NewVersion(strings.TrimPrefix(latest, "v"))
	if err != nil {
		return false, fmt.Errorf("invalid release version %q: %w", latest, err)
	}
	cv, err := semver.NewVersion(strings.TrimPrefix(current, "v"))
	if err != nil {
		return true, nil
	}
	return lv.GreaterThan(cv), nil
}

// Ensure ReleaseChecker implements domain.UpdateChannel.
var _ domain.UpdateChannel = (*ReleaseChecker)(nil)
