package prebuilt

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kingrea/cbuildbot/internal/logging"
)

// DefaultJobs bounds concurrent uploads.
const DefaultJobs = 8

// ObjectStore copies one local file to a bucket object.
type ObjectStore interface {
	Upload(ctx context.Context, localPath, bucket, object string) error
}

// Report summarizes an upload.
type Report struct {
	Uploaded []string
	Filtered []string
}

// Uploader pushes an upload dict to an ObjectStore.
type Uploader struct {
	store  ObjectStore
	filter *Filter
	jobs   int
	logger *logging.Logger
}

// UploaderOption customizes an Uploader.
type UploaderOption func(*Uploader)

// WithFilter skips every local path the filter matches.
func WithFilter(f *Filter) UploaderOption {
	return func(u *Uploader) {
		u.filter = f
	}
}

// WithJobs sets the upload concurrency.
func WithJobs(n int) UploaderOption {
	return func(u *Uploader) {
		if n > 0 {
			u.jobs = n
		}
	}
}

// WithUploadLogger sets where progress is reported.
func WithUploadLogger(l *logging.Logger) UploaderOption {
	return func(u *Uploader) {
		if l != nil {
			u.logger = l
		}
	}
}

// NewUploader returns an uploader writing to store.
func NewUploader(store ObjectStore, opts ...UploaderOption) (*Uploader, error) {
	if store == nil {
		return nil, fmt.Errorf("prebuilt: object store is required")
	}
	u := &Uploader{store: store, jobs: DefaultJobs, logger: logging.Discard()}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Upload copies every entry of dict that the filter lets through. All
// destinations are validated before the first upload starts. The first
// failed upload cancels the rest.
func (u *Uploader) Upload(ctx context.Context, dict map[string]string) (Report, error) {
	type job struct {
		local, bucket, object string
	}
	locals := make([]string, 0, len(dict))
	for local := range dict {
		locals = append(locals, local)
	}
	sort.Strings(locals)

	var report Report
	jobs := make([]job, 0, len(locals))
	for _, local := range locals {
		if u.filter.ShouldFilterPackage(local) {
			report.Filtered = append(report.Filtered, local)
			continue
		}
		bucket, object, err := ParseGSURL(dict[local])
		if err != nil {
			return Report{}, err
		}
		jobs = append(jobs, job{local: local, bucket: bucket, object: object})
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.jobs)
	for _, j := range jobs {
		g.Go(func() error {
			if err := u.store.Upload(gctx, j.local, j.bucket, j.object); err != nil {
				return fmt.Errorf("prebuilt: upload %s: %w", j.local, err)
			}
			u.logger.Filef("Uploaded %s to gs://%s/%s", j.local, j.bucket, j.object)
			mu.Lock()
			report.Uploaded = append(report.Uploaded, j.local)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	sort.Strings(report.Uploaded)
	return report, nil
}

// ParseGSURL splits gs://bucket/object.
func ParseGSURL(url string) (string, string, error) {
	rest, ok := strings.CutPrefix(url, "gs://")
	if !ok {
		return "", "", fmt.Errorf("prebuilt: %q is not a gs:// URL", url)
	}
	bucket, object, _ := strings.Cut(rest, "/")
	object = strings.TrimLeft(object, "/")
	if bucket == "" || object == "" {
		return "", "", fmt.Errorf("prebuilt: %q needs both a bucket and an object", url)
	}
	return bucket, object, nil
}
