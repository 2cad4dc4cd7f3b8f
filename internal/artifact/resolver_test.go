package artifact

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fakePDF = []byte("%PDF-1.4\n% not a real document\n")

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestLocatePrefersExpectedName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a_other.pdf"), fakePDF)
	writeFile(t, filepath.Join(dir, "Jane_Doe_CV.pdf"), fakePDF)

	got, err := NewResolver(false, nil).Locate(dir, "Jane_Doe_CV.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Jane_Doe_CV.pdf"), got)
}

func TestLocateSearchesTree(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "rendercv_output", "notes.txt"), []byte("x"))
	writeFile(t, filepath.Join(dir, "rendercv_output", "Jane_CV.PDF"), fakePDF)

	got, err := NewResolver(false, nil).Locate(dir, "Someone_Else_CV.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rendercv_output", "Jane_CV.PDF"), got)
}

func TestLocateNestedExpectedWins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "out", "a.pdf"), fakePDF)
	writeFile(t, filepath.Join(dir, "out", "Jane_CV.pdf"), fakePDF)

	got, err := NewResolver(false, nil).Locate(dir, "Jane_CV.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "Jane_CV.pdf"), got)
}

func TestLocateNotFound(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "resume.yaml"), []byte("cv: {}"))

	_, err := NewResolver(false, nil).Locate(dir, "Jane_CV.pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestEncodePolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Jane_CV.pdf")
	writeFile(t, path, fakePDF)
	r := NewResolver(false, nil)

	enc, err := r.Encode(path, Policy{Requested: true, Constrained: true})
	require.NoError(t, err)
	assert.Equal(t, SkipConstrained, enc.Skipped)
	assert.Empty(t, enc.Data)

	enc, err = r.Encode(path, Policy{})
	require.NoError(t, err)
	assert.Equal(t, SkipNotRequested, enc.Skipped)

	enc, err = r.Encode(path, Policy{Requested: true, MaxBytes: 4})
	require.NoError(t, err)
	assert.Equal(t, PayloadTooLarge, enc.Skipped)
	assert.Equal(t, int64(len(fakePDF)), enc.Size)
	assert.Empty(t, enc.Base64())

	enc, err = r.Encode(path, Policy{Requested: true})
	require.NoError(t, err)
	assert.Equal(t, SkipNone, enc.Skipped)
	assert.Equal(t, fakePDF, enc.Data)
	assert.Equal(t, base64.StdEncoding.EncodeToString(fakePDF), enc.Base64())
}

func TestEncodeMissingFile(t *testing.T) {
	_, err := NewResolver(false, nil).Encode(filepath.Join(t.TempDir(), "gone.pdf"), Policy{Requested: true})
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.pdf")
	writeFile(t, path, fakePDF)

	pages, err := NewResolver(false, nil).Verify(path)
	require.NoError(t, err)
	assert.Zero(t, pages)

	_, err = NewResolver(true, nil).Verify(path)
	assert.Error(t, err)
}

func TestIsPDFAndNames(t *testing.T) {
	assert.True(t, IsPDF(fakePDF))
	assert.False(t, IsPDF([]byte("<html>")))
	assert.Equal(t, "Jane_Doe", Slug("Jane  Doe!"))
	assert.Equal(t, "Jane_Doe_CV.pdf", ExpectedFilename("Jane Doe"))
}
