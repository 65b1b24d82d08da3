package provider

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memProvider(t *testing.T, files map[string]string) *LocalProvider {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return NewLocalProvider(fs)
}

func TestLocalProvider_Stat(t *testing.T) {
	tempBase := t.TempDir()
	testFile := filepath.Join(tempBase, "test-stat.img")
	testContent := []byte("hello stat")
	require.NoError(t, os.WriteFile(testFile, testContent, 0o644))

	p := NewLocalProvider(nil)
	info, err := p.Stat(context.Background(), testFile)
	require.NoError(t, err)

	assert.Equal(t, "test-stat.img", info.Name())
	assert.Equal(t, int64(len(testContent)), info.Size())
	assert.False(t, info.IsDir())
}

func TestLocalProvider_List(t *testing.T) {
	p := memProvider(t, map[string]string{
		"/mnt/images/subdir/file1.img": "f1",
		"/mnt/images/subdir/file2.img": "f2",
	})

	infos, err := p.List(context.Background(), "/mnt/images/subdir")
	require.NoError(t, err)

	var names []string
	for _, info := range infos {
		names = append(names, info.Name())
	}
	assert.ElementsMatch(t, []string{"file1.img", "file2.img"}, names)
}

func TestLocalProvider_CancelledContext(t *testing.T) {
	p := memProvider(t, map[string]string{"/a.img": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.OpenRead(ctx, "/a.img")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = p.OpenDevice(ctx, "/a.img")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalProvider_OpenRead(t *testing.T) {
	p := memProvider(t, map[string]string{"/mnt/images/golden.img": "hello read"})

	rc, err := p.OpenRead(context.Background(), "/mnt/images/golden.img")
	require.NoError(t, err)
	defer rc.Close()

	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello read", string(content))
}

func TestLocalProvider_OpenWriteTruncates(t *testing.T) {
	p := memProvider(t, map[string]string{"/mnt/usb/old.img": "previous contents"})

	wc, err := p.OpenWrite(context.Background(), "/mnt/usb/old.img")
	require.NoError(t, err)
	_, err = wc.Write([]byte("new"))
	require.NoError(t, err)
	require.NoError(t, wc.Close())

	data, err := afero.ReadFile(p.fs, "/mnt/usb/old.img")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestLocalProvider_OpenDeviceNeverCreates(t *testing.T) {
	p := memProvider(t, nil)

	_, err := p.OpenDevice(context.Background(), "/dev/sda")
	require.Error(t, err)

	exists, err := afero.Exists(p.fs, "/dev/sda")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalProvider_CheckReadable(t *testing.T) {
	p := memProvider(t, map[string]string{
		"/mnt/images/ok.img":     "ok",
		"/mnt/images/secret.img": "no",
	})
	require.NoError(t, p.fs.Chmod("/mnt/images/secret.img", 0o200))

	assert.NoError(t, p.CheckReadable("/mnt/images/ok.img"))
	assert.ErrorIs(t, p.CheckReadable("/mnt/images/secret.img"), ErrNotReadable)
	assert.ErrorIs(t, p.CheckReadable("/mnt/images"), ErrNotRegular)
	assert.ErrorIs(t, p.CheckReadable("/mnt/images/missing.img"), os.ErrNotExist)
}

func TestLocalProvider_CheckWritableTarget(t *testing.T) {
	p := memProvider(t, map[string]string{
		"/mnt/usb/existing.img":  "x",
		"/mnt/ro/readonly/a.img": "x",
	})
	require.NoError(t, p.fs.Chmod("/mnt/ro/readonly", 0o555))

	exists, err := p.CheckWritableTarget("/mnt/usb/existing.img")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = p.CheckWritableTarget("/mnt/usb/new.img")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = p.CheckWritableTarget("/mnt/ro/readonly/b.img")
	assert.ErrorIs(t, err, ErrNotWritable)

	_, err = p.CheckWritableTarget("/mnt/usb")
	assert.ErrorIs(t, err, ErrNotRegular)

	_, err = p.CheckWritableTarget("/mnt/nowhere/new.img")
	assert.Error(t, err)
}

func TestLocalProvider_OSAccessChecks(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "image.img")
	require.NoError(t, os.WriteFile(file, []byte("data"), 0o644))

	p := NewLocalProvider(afero.NewOsFs())
	assert.NoError(t, p.CheckReadable(file))

	exists, err := p.CheckWritableTarget(filepath.Join(dir, "archive.img"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSize(t *testing.T) {
	p := memProvider(t, map[string]string{"/dev/fake": "0123456789"})

	f, err := p.OpenRead(context.Background(), "/dev/fake")
	require.NoError(t, err)
	defer f.Close()

	size, err := Size(f)
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)

	// offset is back at the start
	buf := make([]byte, 3)
	_, err = io.ReadFull(f, buf)
	require.NoError(t, err)
	assert.Equal(t, "012", string(buf))
}

func TestEnsureDir(t *testing.T) {
	p := memProvider(t, nil)
	require.NoError(t, p.EnsureDir("/mnt/images/archive"))

	info, err := p.fs.Stat("/mnt/images/archive")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestPartialPath(t *testing.T) {
	assert.Equal(t, "/mnt/usb/.backup.img.partial", PartialPath("/mnt/usb/backup.img"))
	assert.Equal(t, "/mnt/images/archive/.unit7.img.partial", PartialPath("/mnt/images/archive/unit7.img"))
}

func TestLocalProvider_RenameReplaces(t *testing.T) {
	p := memProvider(t, map[string]string{
		"/mnt/usb/good.img":          "old",
		"/mnt/usb/.good.img.partial": "new",
	})

	require.NoError(t, p.Rename("/mnt/usb/.good.img.partial", "/mnt/usb/good.img"))

	data, err := afero.ReadFile(p.fs, "/mnt/usb/good.img")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	require.NoError(t, p.Remove("/mnt/usb/good.img"))
	exists, err := afero.Exists(p.fs, "/mnt/usb/good.img")
	require.NoError(t, err)
	assert.False(t, exists)
}
