package tarx

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "file", KindRegular.String())
	assert.Equal(t, "dir", KindDirectory.String())
	assert.Equal(t, "symlink", KindSymlink.String())
	assert.Equal(t, "hardlink", KindHardlink.String())
	assert.Equal(t, "unknown", Kind(42).String())
}

func TestModeConversion(t *testing.T) {
	tests := []struct {
		name string
		mode fs.FileMode
		wire int64
	}{
		{"plain", 0o644, 0o644},
		{"executable", 0o755, 0o755},
		{"setuid", 0o755 | fs.ModeSetuid, 0o4755},
		{"setgid", 0o750 | fs.ModeSetgid, 0o2750},
		{"sticky", 0o777 | fs.ModeSticky, 0o1777},
		{"all special bits", 0o700 | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky, 0o7700},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wire, wireMode(tt.mode))
			assert.Equal(t, tt.mode, fileMode(tt.wire))
		})
	}
}

func TestFileModeDiscardsTypeBits(t *testing.T) {
	// Some implementations fold file-type bits into the mode field; only
	// permissions and the special bits survive.
	assert.Equal(t, fs.FileMode(0o644), fileMode(0o100644))
}
