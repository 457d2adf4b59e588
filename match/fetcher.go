package match

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/marku123123/petpals-new/store"
)

// maxImageBytes caps a single image download. The upload endpoint enforces
// the same limit, so anything larger is either stale or not ours.
const maxImageBytes = 10 << 20

// FetchedImage holds the raw bytes of one report's photo plus the temporary
// file they were spooled to. Release must be called exactly once, on success
// and failure paths alike.
type FetchedImage struct {
	Bytes       []byte
	ContentType string

	path    string
	tracker *resourceTracker
}

// Release removes the temporary file and returns the resource to baseline.
func (f *FetchedImage) Release() {
	if f.path != "" {
		_ = os.Remove(f.path)
		f.path = ""
		f.tracker.release()
	}
	f.Bytes = nil
}

// Fetcher retrieves report images over HTTP from the upload store. A HEAD
// probe validates the declared content type before the body is downloaded.
type Fetcher struct {
	baseURL  string
	cacheDir string
	client   *http.Client
	limiter  *rate.Limiter
	tracker  *resourceTracker
}

// NewFetcher creates a Fetcher rooted at baseURL, spooling downloads under
// cacheDir. ratePerSec bounds requests against the upload store; zero
// disables the limit.
func NewFetcher(baseURL, cacheDir string, ratePerSec float64) *Fetcher {
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &Fetcher{
		baseURL:  strings.TrimRight(baseURL, "/"),
		cacheDir: cacheDir,
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(limit, 1),
		tracker:  &resourceTracker{},
	}
}

// Fetch probes and downloads the image of one report. Any failure is a
// per-report error: the caller logs it and drops the report from the pass.
func (f *Fetcher) Fetch(ctx context.Context, report *store.Report) (*FetchedImage, error) {
	if report.ImagePath == nil || *report.ImagePath == "" {
		return nil, errors.New("report has no image path")
	}

	imageURL, err := url.JoinPath(f.baseURL, *report.ImagePath)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid image path %q", *report.ImagePath)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	contentType, err := f.probe(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, errors.Errorf("invalid content type %q for pet %d", contentType, report.PetID)
	}

	data, err := f.download(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	// Spool to a per-report temp file keyed by pet id so a crashed pass
	// leaves identifiable debris under the cache dir.
	ext := strings.ToLower(filepath.Ext(*report.ImagePath))
	path := filepath.Join(f.cacheDir, fmt.Sprintf("pet-%d%s", report.PetID, ext))
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, errors.Wrap(err, "failed to spool image")
	}
	f.tracker.acquire()

	return &FetchedImage{
		Bytes:       data,
		ContentType: contentType,
		path:        path,
		tracker:     f.tracker,
	}, nil
}

func (f *Fetcher) probe(ctx context.Context, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, imageURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to build probe request")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "image probe failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("image probe returned status %d", resp.StatusCode)
	}
	return resp.Header.Get("Content-Type"), nil
}

func (f *Fetcher) download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build download request")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "image download failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("image download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read image body")
	}
	if len(data) > maxImageBytes {
		return nil, errors.Errorf("image exceeds %d byte limit", maxImageBytes)
	}
	return data, nil
}

// ResourceCount returns the number of unreleased fetched images. It must be
// zero between passes.
func (f *Fetcher) ResourceCount() int64 {
	return f.tracker.count()
}
