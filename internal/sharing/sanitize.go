package sharing

import (
	"path"
	"strings"
)

const (
	defaultFolder   = "Shared"
	defaultFilename = "Untitled.md"
)

// reservedChars are stripped from incoming paths; they are either unsafe on
// common filesystems or meaningless inside a vault.
const reservedChars = `<>:"|?*`

// SanitizePath normalizes a path received from another user so it can be
// written into the local vault. Sender-supplied paths are untrusted: the
// result never escapes the vault root and always carries the markdown
// extension.
func SanitizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")

	// Drive letters and absolute prefixes would anchor the path outside
	// the vault.
	if len(p) >= 2 && p[1] == ':' {
		p = p[2:]
	}

	var b strings.Builder
	for _, r := range p {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(reservedChars, r) {
			continue
		}
		b.WriteRune(r)
	}
	p = strings.TrimLeft(b.String(), "/")

	parts := strings.Split(p, "/")
	clean := parts[:0]
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || part == "." || part == ".." {
			continue
		}
		clean = append(clean, part)
	}
	p = strings.Join(clean, "/")

	if p == "" {
		p = defaultFilename
	}
	if !strings.HasSuffix(strings.ToLower(p), ".md") {
		p += ".md"
	}
	if !strings.HasPrefix(p, defaultFolder+"/") {
		p = path.Join(defaultFolder, p)
	}
	return p
}
