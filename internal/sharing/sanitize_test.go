package sharing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain name", "notes.md", "Shared/notes.md"},
		{"keeps shared prefix", "Shared/notes.md", "Shared/notes.md"},
		{"adds markdown extension", "notes", "Shared/notes.md"},
		{"preserves folders", "work/meeting notes.md", "Shared/work/meeting notes.md"},
		{"traversal", "../../etc/passwd", "Shared/etc/passwd.md"},
		{"absolute", "/etc/passwd.md", "Shared/etc/passwd.md"},
		{"drive letter", `C:\Users\eve\note.md`, "Shared/Users/eve/note.md"},
		{"control characters", "no\x00te\n.md", "Shared/note.md"},
		{"reserved characters", `a<b>c:d"e|f?g*.md`, "Shared/abcdefg.md"},
		{"dot segments", "./a/./b.md", "Shared/a/b.md"},
		{"empty", "", "Shared/Untitled.md"},
		{"only traversal", "../..", "Shared/Untitled.md"},
		{"uppercase extension kept", "NOTES.MD", "Shared/NOTES.MD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, SanitizePath(tt.in))
		})
	}
}
