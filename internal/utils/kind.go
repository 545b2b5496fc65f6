package utils

import (
	"github.com/h2non/filetype"
)

// DetectKind sniffs the header of a file and returns its MIME type,
// or an empty string when the content is not recognized.
func DetectKind(path string) string {
	kind, err := filetype.MatchFile(path)
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}
