package browser

import (
	"regexp"
	"strings"
)

// driveRootRE matches a canonical drive root, e.g. "/C:/".
var driveRootRE = regexp.MustCompile(`^/[A-Za-z]:/$`)

// Normalize canonicalizes a remote path accepted from any of the forms
// the browser's caller may send: absolute POSIX, `~`/`~/...`, or
// Windows-drive-style (`C:/...` or `/C:/...`). Repeated slashes collapse,
// drive-letter artifacts canonicalize to `/X:/...`, and a trailing slash
// is stripped except for the root and a drive root.
func Normalize(path string) string {
	if path == "" {
		return "/"
	}

	p := path
	if p == "~" {
		return "~"
	}
	if strings.HasPrefix(p, "~/") {
		return "~/" + strings.Trim(collapseSlashes(strings.TrimPrefix(p, "~/")), "/")
	}

	// Windows-drive-style without a leading slash: C:/... becomes /C:/...
	if len(p) >= 2 && isDriveLetter(p[0]) && p[1] == ':' {
		p = "/" + p
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	p = collapseSlashes(p)

	if p != "/" && !isDriveRootForm(p) {
		p = strings.TrimSuffix(p, "/")
	}
	if isDriveRootForm(p) && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	if p == "" {
		p = "/"
	}

	return p
}

func isDriveLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// isDriveRootForm reports whether p is (or, lacking a trailing slash,
// would be) a bare drive root like "/C:" or "/C:/".
func isDriveRootForm(p string) bool {
	if strings.HasSuffix(p, "/") {
		return driveRootRE.MatchString(p)
	}
	return driveRootRE.MatchString(p + "/")
}

func collapseSlashes(p string) string {
	var b strings.Builder
	lastSlash := false
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' {
			if lastSlash {
				continue
			}
			lastSlash = true
		} else {
			lastSlash = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

// ParentOf computes the parent of an already-normalized path. The root
// and a drive root are their own parent: there is nowhere further up to
// go without leaving the remote filesystem entirely.
func ParentOf(normalized string) string {
	if normalized == "/" || normalized == "~" || isDriveRootForm(normalized) {
		return normalized
	}

	trimmed := strings.TrimSuffix(normalized, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return Normalize(trimmed)
	}
	if idx == 0 {
		return "/"
	}
	return Normalize(trimmed[:idx])
}

// Breadcrumbs splits a normalized path into its path components, suitable
// for a UI breadcrumb trail.
func Breadcrumbs(normalized string) []string {
	if normalized == "/" {
		return []string{"/"}
	}
	parts := strings.Split(strings.Trim(normalized, "/"), "/")
	crumbs := make([]string, 0, len(parts)+1)
	crumbs = append(crumbs, "/")
	crumbs = append(crumbs, parts...)
	return crumbs
}
