package manager

import (
	"path"
	"strings"
	"time"
	"unicode"

	// Packages
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const defaultBaseName = "file"

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// objectKey returns <prefix>/YYYY/MM/DD/<base>-<suffix><ext>, where the
// suffix is taken from the upload id so that concurrent uploads of the
// same file name do not collide.
func objectKey(prefix string, ts time.Time, filename, uploadId string) string {
	base, ext := splitName(filename)
	suffix := strings.ReplaceAll(uploadId, "-", "")
	if len(suffix) > schema.KeySuffixLength {
		suffix = suffix[:schema.KeySuffixLength]
	}
	return path.Join(strings.Trim(prefix, "/"), ts.UTC().Format("2006/01/02"), base+"-"+suffix+ext)
}

// suggestedKey is the key a new upload of filename would be stored under,
// without the upload suffix.
func suggestedKey(prefix string, ts time.Time, filename string) string {
	base, ext := splitName(filename)
	return path.Join(strings.Trim(prefix, "/"), ts.UTC().Format("2006/01/02"), base+ext)
}

// splitName returns the sanitised base name and lowercase extension of a
// client supplied file name, which may include a directory.
func splitName(filename string) (string, string) {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" {
		name = ""
	}
	ext := path.Ext(name)
	base := sanitize(strings.TrimSuffix(name, ext))
	if base == "" {
		base = defaultBaseName
	}
	return base, sanitize(strings.ToLower(ext))
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case r == '-', r == '_', r == '.':
			return r
		case unicode.IsSpace(r):
			return '_'
		default:
			return -1
		}
	}, s)
}
