package handlers

import (
	"errors"
	"io/fs"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

var windowsDeviceNames = map[string]bool{
	"CON": true, "AUX": true, "COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "PRN": true, "NUL": true,
}

// SecureFilename reduces an uploaded filename to a flat ASCII name that is
// safe as a single path component. It may return "".
func SecureFilename(name string) string {
	// Fold accents away and drop anything left outside ASCII.
	decomposed := norm.NFKD.String(name)
	ascii := strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, decomposed)

	ascii = strings.NewReplacer("/", " ", "\\", " ").Replace(ascii)
	ascii = strings.Join(strings.Fields(ascii), "_")
	ascii = unsafeFilenameChars.ReplaceAllString(ascii, "")
	ascii = strings.Trim(ascii, "._")

	if ascii != "" {
		base := strings.ToUpper(strings.SplitN(ascii, ".", 2)[0])
		if windowsDeviceNames[base] {
			ascii = "_" + ascii
		}
	}
	return ascii
}

// Extension returns the lower-case text after the last dot, or "" when the
// name has no dot.
func Extension(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// storedFilename is the name an accepted upload is saved under. When
// sanitizing leaves nothing usable a random name keeps the extension.
func storedFilename(original string) string {
	ext := Extension(original)
	name := SecureFilename(original)
	if name == "" || Extension(name) != ext || strings.TrimSuffix(name, "."+ext) == "" {
		return uuid.NewString() + "." + ext
	}
	return filepath.Base(name)
}

// createUploadFile creates the file an upload is written to. The sanitized
// name is used when it is free; otherwise a short random prefix is added, so
// concurrent uploads with the same name never share a file.
func createUploadFile(dir, original string) (string, *os.File, error) {
	name := storedFilename(original)
	for attempt := 0; attempt < 5; attempt++ {
		candidate := name
		if attempt > 0 {
			candidate = uuid.NewString()[:8] + "_" + name
		}
		f, err := os.OpenFile(filepath.Join(dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", nil, err
		}
		return candidate, f, nil
	}
	return "", nil, errors.New("no free upload filename for " + name)
}

// partFilename reports the raw filename parameter of a part and whether the
// parameter is present at all. A plain form field has none.
func partFilename(p *multipart.Part) (string, bool) {
	_, params, err := mime.ParseMediaType(p.Header.Get("Content-Disposition"))
	if err != nil {
		name := p.FileName()
		return name, name != ""
	}
	name, ok := params["filename"]
	return name, ok
}
