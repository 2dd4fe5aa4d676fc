package clients

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/doxen-app/doxen/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 understands just enough path-style S3 for the archive.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = string(body)
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code></Error>`)
			return
		}
		io.WriteString(w, body)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestArchive(t *testing.T) (*DocumentArchive, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string]string{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	archive, err := NewDocumentArchive(context.Background(), types.S3Config{
		Bucket:    "doxen-documents",
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "test",
		SecretKey: "test",
	})
	require.NoError(t, err)
	return archive, fake
}

func TestDocumentArchiveRoundTrip(t *testing.T) {
	archive, fake := newTestArchive(t)
	ctx := context.Background()
	key := "user-1/project-1/source-1.txt"

	require.NoError(t, archive.Upload(ctx, key, []byte("Slack Channel: #general")))
	assert.Equal(t, "Slack Channel: #general", fake.objects["/doxen-documents/"+key])
	assert.Equal(t, documentContentType, fake.types["/doxen-documents/"+key])

	data, err := archive.Download(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Slack Channel: #general", string(data))

	require.NoError(t, archive.Delete(ctx, key))
	assert.Empty(t, fake.objects)

	_, err = archive.Download(ctx, key)
	assert.Error(t, err)
}

func TestDocumentArchivePresign(t *testing.T) {
	archive, _ := newTestArchive(t)

	link, err := archive.PresignDownload(context.Background(), "user-1/p/s.txt", 0)
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/doxen-documents/user-1/p/s.txt", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
}

func TestDocumentArchiveRequiresBucket(t *testing.T) {
	_, err := NewDocumentArchive(context.Background(), types.S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}
