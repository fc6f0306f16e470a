// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-digest/pkg/types"
)

type fakeStore struct {
	exists  bool
	made    []string
	objects map[string]string
	failOn  string
}

func (f *fakeStore) BucketExists(context.Context, string) (bool, error) {
	return f.exists, nil
}

func (f *fakeStore) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	return nil
}

func (f *fakeStore) FPutObject(_ context.Context, _, object, _ string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if object == f.failOn {
		return minio.UploadInfo{}, errors.New("access denied")
	}
	if f.objects == nil {
		f.objects = make(map[string]string)
	}
	f.objects[object] = opts.ContentType
	return minio.UploadInfo{Key: object}, nil
}

func writeSite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"index.html", "2025-01-02/index.html", "figures/2025-01-02/2501.00001/fig1.png", "data.unknownext"} {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	return dir
}

func TestPublish(t *testing.T) {
	dir := writeSite(t)
	store := &fakeStore{}
	p := NewWithStore(store, types.PublishConfig{Bucket: "site", Prefix: "digest"}, nil)

	n, err := p.Publish(t.Context(), dir)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"site"}, store.made)

	keys := make([]string, 0, len(store.objects))
	for k := range store.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{
		"digest/2025-01-02/index.html",
		"digest/data.unknownext",
		"digest/figures/2025-01-02/2501.00001/fig1.png",
		"digest/index.html",
	}, keys)
	assert.True(t, strings.HasPrefix(store.objects["digest/index.html"], "text/html"))
	assert.Equal(t, "image/png", store.objects["digest/figures/2025-01-02/2501.00001/fig1.png"])
	assert.Equal(t, "application/octet-stream", store.objects["digest/data.unknownext"])
}

func TestPublish_ExistingBucketAndFailure(t *testing.T) {
	dir := writeSite(t)
	store := &fakeStore{exists: true, failOn: "index.html"}
	p := NewWithStore(store, types.PublishConfig{Bucket: "site"}, nil)

	_, err := p.Publish(t.Context(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uploading index.html")
	assert.Empty(t, store.made)
}

func TestNew_NotConfigured(t *testing.T) {
	_, err := New(types.PublishConfig{Endpoint: "localhost:9000"}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "a/b.html", ObjectName("", filepath.Join("a", "b.html")))
	assert.Equal(t, "pre/a/b.html", ObjectName("pre/", filepath.Join("a", "b.html")))
}
