package denylist

import (
	"path/filepath"
	"strings"
)

// MatchFileType returns the first pattern that matches a file. Patterns are
// extensions ("pdf", ".pdf", "*.pdf"), MIME types ("application/pdf",
// "image/*"), or "*" for every file. fileType may be an extension or a MIME
// type; the extension of fileName is always considered.
func MatchFileType(fileName, fileType string, patterns []string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	typ := strings.ToLower(strings.TrimSpace(fileType))
	typExt := strings.TrimPrefix(typ, ".")

	for _, raw := range patterns {
		p := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case p == "":
			continue
		case p == "*":
			return raw, true
		case strings.Contains(p, "/"):
			if matchMIME(typ, p) {
				return raw, true
			}
		default:
			p = strings.TrimPrefix(strings.TrimPrefix(p, "*"), ".")
			if p != "" && (p == ext || p == typExt) {
				return raw, true
			}
		}
	}
	return "", false
}

func matchMIME(typ, pattern string) bool {
	if typ == "" || !strings.Contains(typ, "/") {
		return false
	}
	if base, _, ok := strings.Cut(typ, ";"); ok {
		typ = strings.TrimSpace(base)
	}
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		return strings.HasPrefix(typ, prefix+"/")
	}
	return typ == pattern
}
