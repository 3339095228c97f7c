// Package publish uploads the file assets of a cloud assembly to pre-signed
// object URLs.
package publish

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/vk/pipestack/internal/ctxlog"
	"github.com/vk/pipestack/internal/synth"
)

// Upload is one file of the assembly and the URL it is PUT to.
type Upload struct {
	Name      string
	File      string
	ObjectKey string
	URL       string
}

// Result reports a completed upload.
type Result struct {
	ObjectKey string
	Status    string
	Size      int64
	Attempts  int
}

// StatusError is returned when the object store answers with a non-2xx status.
type StatusError struct {
	ObjectKey  string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upload of %s failed with status: %s", e.ObjectKey, e.Status)
}

// Publisher performs uploads.
type Publisher struct {
	client     *http.Client
	newBackOff func() backoff.BackOff
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithHTTPClient sets the client used for uploads.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Publisher) { p.client = c }
}

// WithBackOff sets the retry policy; a new policy is created per upload.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(p *Publisher) { p.newBackOff = newBackOff }
}

// New creates a Publisher with a default client and exponential backoff.
func New(opts ...Option) *Publisher {
	p := &Publisher{
		client:     &http.Client{Timeout: 5 * time.Minute},
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func defaultBackOff() backoff.BackOff {
	var (
		initialInterval     = 500 * time.Millisecond
		randomizationFactor = 0.5
		multiplier          = 2.0
		maxInterval         = 10 * time.Second
		maxElapsedTime      = 2 * time.Minute
	)

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initialInterval
	exp.RandomizationFactor = randomizationFactor
	exp.Multiplier = multiplier
	exp.MaxInterval = maxInterval
	exp.MaxElapsedTime = maxElapsedTime

	return backoff.WithMaxRetries(exp, 5)
}

// Plan pairs every file asset of the assembly in dir with its URL. urls is
// keyed by object key; a file without a URL is an error.
func Plan(dir string, urls map[string]string) ([]Upload, error) {
	manifests, err := synth.ReadAssetManifests(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read assembly %s: %w", dir, err)
	}

	var uploads []Upload
	var missing []string
	seen := make(map[string]bool)
	for _, m := range manifests {
		for name, f := range m.Files {
			for _, dest := range f.Destinations {
				if seen[dest.ObjectKey] {
					continue
				}
				seen[dest.ObjectKey] = true
				url, ok := urls[dest.ObjectKey]
				if !ok {
					missing = append(missing, dest.ObjectKey)
					continue
				}
				uploads = append(uploads, Upload{
					Name:      name,
					File:      filepath.Join(dir, f.Source.Path),
					ObjectKey: dest.ObjectKey,
					URL:       url,
				})
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("no upload URL given for %s", strings.Join(missing, ", "))
	}
	for key := range urls {
		if !seen[key] {
			return nil, fmt.Errorf("upload URL given for unknown object %q", key)
		}
	}

	sort.Slice(uploads, func(i, j int) bool { return uploads[i].ObjectKey < uploads[j].ObjectKey })
	return uploads, nil
}

// ParseURLs turns `objectKey=url` pairs into a URL map.
func ParseURLs(pairs []string) (map[string]string, error) {
	urls := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, url, ok := strings.Cut(pair, "=")
		if !ok || key == "" || url == "" {
			return nil, fmt.Errorf("invalid upload URL %q: expected objectKey=url", pair)
		}
		urls[key] = url
	}
	return urls, nil
}

// Publish uploads the files one after another and stops at the first
// failure.
func (p *Publisher) Publish(ctx context.Context, uploads []Upload) ([]Result, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Publishing assets.", "count", len(uploads))

	results := make([]Result, 0, len(uploads))
	for _, u := range uploads {
		res, err := p.upload(ctx, u)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (p *Publisher) upload(ctx context.Context, u Upload) (Result, error) {
	logger := ctxlog.FromContext(ctx).With("object", u.ObjectKey)
	res := Result{ObjectKey: u.ObjectKey}

	op := func() error {
		res.Attempts++
		status, size, err := p.put(ctx, u)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		res.Status = status
		res.Size = size
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Upload failed, retrying.", "error", err, "wait", wait)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(p.newBackOff(), ctx), notify); err != nil {
		return res, err
	}
	logger.Info("Asset uploaded.", "status", res.Status, "size", res.Size, "attempts", res.Attempts)
	return res, nil
}

func (p *Publisher) put(ctx context.Context, u Upload) (string, int64, error) {
	file, err := os.Open(u.File)
	if err != nil {
		return "", 0, backoff.Permanent(fmt.Errorf("failed to open %s: %w", u.File, err))
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return "", 0, backoff.Permanent(fmt.Errorf("failed to get file stats for %s: %w", u.File, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.URL, file)
	if err != nil {
		return "", 0, backoff.Permanent(fmt.Errorf("failed to create upload request: %w", err))
	}
	contentType := mime.TypeByExtension(filepath.Ext(u.File))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = stat.Size()

	resp, err := p.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to execute upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", 0, &StatusError{ObjectKey: u.ObjectKey, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return resp.Status, stat.Size(), nil
}
