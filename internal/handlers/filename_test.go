package handlers

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "face.jpg", "face.jpg"},
		{"spaces", "my happy face.png", "my_happy_face.png"},
		{"unix traversal", "../../etc/passwd", "etc_passwd"},
		{"windows path", `C:\Users\me\smile.JPG`, "C_Users_me_smile.JPG"},
		{"accents folded", "sonrisa_niño.gif", "sonrisa_nino.gif"},
		{"unsafe chars dropped", "a<b>c|d?.jpeg", "abcd.jpeg"},
		{"leading dots", "...hidden.png", "hidden.png"},
		{"device name", "con.jpg", "_con.jpg"},
		{"nothing left", "???", ""},
		{"non ascii only", "微笑", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SecureFilename(tt.input))
		})
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "jpg", Extension("a.b.JPG"))
	assert.Equal(t, "", Extension("noext"))
	assert.Equal(t, "", Extension("trailing."))
}

func TestStoredFilename(t *testing.T) {
	assert.Equal(t, "face.jpg", storedFilename("face.jpg"))

	for _, input := range []string{"微笑.png", "../.png", "???.png"} {
		got := storedFilename(input)
		assert.True(t, strings.HasSuffix(got, ".png"), "got %q", got)
		assert.Len(t, got, 36+len(".png"), "got %q", got)
	}
}

func TestCreateUploadFile(t *testing.T) {
	dir := t.TempDir()

	first, f1, err := createUploadFile(dir, "../Face Photo.png")
	require.NoError(t, err)
	defer f1.Close()
	assert.Equal(t, "Face_Photo.png", first)

	second, f2, err := createUploadFile(dir, "Face Photo.png")
	require.NoError(t, err)
	defer f2.Close()
	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasSuffix(second, "_Face_Photo.png"), second)
	assert.Equal(t, filepath.Join(dir, second), f2.Name())
}
