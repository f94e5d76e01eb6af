package utils

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/h2non/filetype"
	"github.com/vfaronov/httpheader"
)

// FilenameFromURL derives a filename from the last path segment of a URL,
// stripping any query string. Empty or unusable segments fall back to
// "download".
func FilenameFromURL(rawurl string) string {
	trimmed := rawurl
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}

	name := SanitizeFilename(trimmed)
	if name == "" || name == "." {
		return "download"
	}
	return name
}

// RefineFilename improves a URL-derived name using response metadata:
// Content-Disposition first, then well-known query parameters, then magic
// bytes for a missing extension. header may be nil and sniff empty.
func RefineFilename(rawurl string, respHeader http.Header, sniff []byte) string {
	var candidate string

	if respHeader != nil {
		if _, name, err := httpheader.ContentDisposition(respHeader); err == nil && name != "" {
			candidate = name
		}
	}

	if candidate == "" {
		if parsed, err := url.Parse(rawurl); err == nil {
			q := parsed.Query()
			if name := q.Get("filename"); name != "" {
				candidate = name
			} else if name := q.Get("file"); name != "" {
				candidate = name
			}
			if candidate == "" {
				candidate = path.Base(parsed.Path)
			}
		}
	}

	name := SanitizeFilename(candidate)
	if name == "" || name == "." || name == "/" {
		name = "download"
	}

	if path.Ext(name) == "" && len(sniff) > 0 {
		if kind, _ := filetype.Match(sniff); kind != filetype.Unknown && kind.Extension != "" {
			name = name + "." + kind.Extension
		}
	}

	return name
}

// SanitizeFilename strips path separators and characters that are unsafe on
// common filesystems.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = strings.TrimSpace(name)
	if name == "/" {
		return "_"
	}
	replacer := strings.NewReplacer(
		"/", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_",
	)
	return replacer.Replace(name)
}
