package transform

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/buildmode"
	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

func uncompressedPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	require.NoError(t, enc.Encode(&buf, img))
	return buf.Bytes()
}

func highQualityJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}))
	return buf.Bytes()
}

const testSVG = `<?xml version="1.0"?>
<!-- exported by an editor -->
<svg xmlns="http://www.w3.org/2000/svg"   width="10"   height="10">
    <rect x="0" y="0" width="10" height="10" fill="#ff0000" />
</svg>
`

func TestImages_DevCopies(t *testing.T) {
	src := t.TempDir()
	raw := uncompressedPNG(t)
	require.NoError(t, os.MkdirAll(filepath.Join(src, "icons"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(src, "icons", "dot.png"), raw, 0o600))
	writeTree(t, src, map[string]string{"logo.svg": testSVG, ".DS_Store": "junk"})

	staging, out, err := produce(t, Images(), buildmode.Dev, src, nil)
	require.NoError(t, err)
	require.Equal(t, 2, out.Files)

	copied, err := os.ReadFile(filepath.Join(staging, "icons", "dot.png"))
	require.NoError(t, err)
	require.Equal(t, raw, copied)
	require.Equal(t, testSVG, readFile(t, filepath.Join(staging, "logo.svg")))
	require.NoFileExists(t, filepath.Join(staging, ".DS_Store"))
}

func TestImages_BuildOptimizes(t *testing.T) {
	src := t.TempDir()
	raw := uncompressedPNG(t)
	require.NoError(t, os.WriteFile(filepath.Join(src, "dot.png"), raw, 0o600))
	writeTree(t, src, map[string]string{"logo.svg": testSVG, "anim.gif": "GIF89a"})

	staging, _, err := produce(t, Images(), buildmode.Build, src, nil)
	require.NoError(t, err)

	optimized, err := os.ReadFile(filepath.Join(staging, "dot.png"))
	require.NoError(t, err)
	require.Less(t, len(optimized), len(raw))
	_, err = png.Decode(bytes.NewReader(optimized))
	require.NoError(t, err)

	svg := readFile(t, filepath.Join(staging, "logo.svg"))
	require.Less(t, len(svg), len(testSVG))
	require.NotContains(t, svg, "exported by an editor")

	require.Equal(t, "GIF89a", readFile(t, filepath.Join(staging, "anim.gif")))
}

func TestImages_CorruptPNGIsSourceError(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"broken.png": "not a png"})

	_, _, err := produce(t, Images(), buildmode.Build, src, nil)
	require.True(t, derrors.HasCategory(err, derrors.CategorySource))
}

func TestImages_JPEGUnchangedByDefault(t *testing.T) {
	src := t.TempDir()
	raw := highQualityJPEG(t)
	require.NoError(t, os.WriteFile(filepath.Join(src, "photo.jpg"), raw, 0o600))

	staging, _, err := produce(t, Images(), buildmode.Build, src, map[string]string{"quality": "40"})
	require.NoError(t, err)

	out, err := os.ReadFile(filepath.Join(staging, "photo.jpg"))
	require.NoError(t, err)
	require.Equal(t, raw, out)
}

func TestImages_LossyJPEGReencodes(t *testing.T) {
	src := t.TempDir()
	raw := highQualityJPEG(t)
	require.NoError(t, os.WriteFile(filepath.Join(src, "photo.jpg"), raw, 0o600))

	staging, _, err := produce(t, Images(), buildmode.Build, src, map[string]string{"quality": "40", "lossy_jpeg": "true"})
	require.NoError(t, err)

	out, err := os.ReadFile(filepath.Join(staging, "photo.jpg"))
	require.NoError(t, err)
	require.Less(t, len(out), len(raw))
	_, err = jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
}
