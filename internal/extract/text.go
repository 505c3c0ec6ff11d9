package extract

import (
	"strings"
)

// extractText decodes UTF-8, replacing invalid sequences. It never fails and
// keeps every valid character, a leading U+FEFF included.
func extractText(data []byte) (string, error) {
	return strings.ToValidUTF8(string(data), "�"), nil
}
