package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// FakeFFmpegBody is a script body that mimics ffmpeg. A version query prints a
// banner and touches nothing. Any other call appends its arguments to
// $CRDL_FFMPEG_ARGS_LOG when set and writes a small file at the final argument.
const FakeFFmpegBody = `case "$*" in
  *-version*) echo "ffmpeg version test"; exit 0;;
esac
if [ -n "$CRDL_FFMPEG_ARGS_LOG" ]; then
  printf '%s\n' "$*" >> "$CRDL_FFMPEG_ARGS_LOG"
fi
for last; do :; done
printf 'media' > "$last"
exit 0
`

// WriteScript writes an executable /bin/sh script and returns its path.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script %s: %v", name, err)
	}
	return path
}

// WriteFile creates a file with the given size, creating parent directories.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		t.Fatalf("truncate: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
