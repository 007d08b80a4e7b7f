package preprocesscmder

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestPreprocessWritesScaledFiles(t *testing.T) {
	dir := t.TempDir()
	src := writePNG(t, dir, "opg.png", 1600, 800)
	broken := filepath.Join(dir, "broken.png")
	require.NoError(t, os.WriteFile(broken, []byte("nope"), 0o644))
	outDir := filepath.Join(dir, "out")

	cmd := NewPreprocessCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--out", outDir, "--max-dimension", "400", src, broken})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "400x200")
	assert.Contains(t, out.String(), "broken.png")
	_, err := os.Stat(filepath.Join(outDir, "opg.jpg"))
	assert.NoError(t, err)
}

func TestPreprocessFailsWhenNothingDecodes(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.png")
	require.NoError(t, os.WriteFile(broken, []byte("nope"), 0o644))

	cmd := NewPreprocessCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{broken})
	err := cmd.Execute()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no file"))
}
