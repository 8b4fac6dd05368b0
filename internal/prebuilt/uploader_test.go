package prebuilt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string]string
	fail    map[string]error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string]string{}, fail: map[string]error{}}
}

func (m *memoryStore) Upload(_ context.Context, localPath, bucket, object string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.fail[localPath]; ok {
		return err
	}
	m.objects[bucket+"/"+object] = localPath
	return nil
}

func TestUploaderSkipsFilteredPaths(t *testing.T) {
	store := newMemoryStore()
	up, err := NewUploader(store, WithFilter(NewFilter("chromeos-chrome")), WithJobs(2))
	require.NoError(t, err)
	report, err := up.Upload(context.Background(), map[string]string{
		"/br/packages/chromeos-base/chromeos-chrome-9.0.tbz2": "gs://prebuilt/board/x86/v1/packages/chromeos-base/chromeos-chrome-9.0.tbz2",
		"/br/packages/x11-misc/xbitmaps-1.1.0.tbz2":           "gs://prebuilt/board/x86/v1/packages/x11-misc/xbitmaps-1.1.0.tbz2",
		"/br/packages/x11-misc/util-macros-1.5.0.tbz2":        "gs://prebuilt/board/x86/v1/packages/x11-misc/util-macros-1.5.0.tbz2",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/br/packages/chromeos-base/chromeos-chrome-9.0.tbz2"}, report.Filtered)
	assert.Equal(t, []string{
		"/br/packages/x11-misc/util-macros-1.5.0.tbz2",
		"/br/packages/x11-misc/xbitmaps-1.1.0.tbz2",
	}, report.Uploaded)
	assert.Equal(t, "/br/packages/x11-misc/xbitmaps-1.1.0.tbz2",
		store.objects["prebuilt/board/x86/v1/packages/x11-misc/xbitmaps-1.1.0.tbz2"])
	assert.Len(t, store.objects, 2)
}

func TestUploaderRejectsBadDestinationBeforeUploading(t *testing.T) {
	store := newMemoryStore()
	up, err := NewUploader(store)
	require.NoError(t, err)
	_, err = up.Upload(context.Background(), map[string]string{
		"/a": "gs://bucket/a",
		"/b": "s3://bucket/b",
	})
	require.Error(t, err)
	assert.Empty(t, store.objects)
}

func TestUploaderPropagatesStoreFailure(t *testing.T) {
	store := newMemoryStore()
	boom := errors.New("403 forbidden")
	store.fail["/b"] = boom
	up, err := NewUploader(store, WithJobs(1))
	require.NoError(t, err)
	_, err = up.Upload(context.Background(), map[string]string{
		"/a": "gs://bucket/a",
		"/b": "gs://bucket/b",
	})
	assert.ErrorIs(t, err, boom)
}

func TestNewUploaderRequiresStore(t *testing.T) {
	_, err := NewUploader(nil)
	assert.Error(t, err)
}

func TestParseGSURL(t *testing.T) {
	bucket, object, err := ParseGSURL("gs://chromeos-prebuilt/host/2010.10.01/packages/a.tbz2")
	require.NoError(t, err)
	assert.Equal(t, "chromeos-prebuilt", bucket)
	assert.Equal(t, "host/2010.10.01/packages/a.tbz2", object)

	for _, bad := range []string{"http://x/y", "gs://", "gs://bucket", "gs://bucket/", "gs:///obj"} {
		_, _, err := ParseGSURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestTargetPaths(t *testing.T) {
	board := Target{Board: "x86-dogfood"}
	assert.Equal(t, "/b/chroot/build/x86-dogfood/packages", board.LocalDir("/b"))
	assert.Equal(t, "/b/chroot/build/x86-dogfood/", board.StripPath("/b"))
	assert.Equal(t, "gs://prebuilt/board/x86-dogfood/v1", board.RemotePrefix("gs://prebuilt", "v1"))
	assert.Equal(t, "x86-dogfood", board.VersionKey())

	host := Target{}
	assert.Equal(t, "/b/chroot/var/lib/portage/pkgs", host.LocalDir("/b"))
	assert.Equal(t, "gs://prebuilt/host/v1", host.RemotePrefix("gs://prebuilt/", "v1"))
	assert.Equal(t, "host", host.String())

	assert.Equal(t, "2010.10.01.123000", NewVersion(time.Date(2010, 10, 1, 12, 30, 0, 0, time.UTC)))
}
