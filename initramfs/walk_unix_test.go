//go:build unix

package initramfs

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTree_Symlinks(t *testing.T) {
	root := makeTree(t, map[string]string{
		"etc/motd": "welcome",
	})
	require.NoError(t, os.Symlink("etc/motd", filepath.Join(root, "motd")))
	require.NoError(t, os.Symlink("etc", filepath.Join(root, "sysconf")))

	t.Run("reject", func(t *testing.T) {
		w := NewWriter(io.Discard)
		_, err := w.WriteTree(root)

		var sfe *SpecialFileError
		require.ErrorAs(t, err, &sfe)
		assert.Equal(t, "motd", filepath.Base(sfe.Path))
		assert.Equal(t, fs.ModeSymlink, sfe.Mode.Type())
	})

	t.Run("skip", func(t *testing.T) {
		var skipped []string
		data, stats := archiveTree(t, root,
			WithSpecialPolicy(SkipSpecial),
			WithSkipFunc(func(path string, mode fs.FileMode) {
				skipped = append(skipped, path)
			}),
		)

		readArchive(t, data).expectNames(t, "etc", "etc/motd", TrailerFilename)
		assert.Equal(t, []string{"motd", "sysconf"}, skipped)
		assert.Equal(t, 2, stats.Skipped)
	})

	t.Run("follow", func(t *testing.T) {
		data, _ := archiveTree(t, root, WithSpecialPolicy(FollowSymlinks))

		hdrs := readArchive(t, data)
		hdrs.expectNames(t, "etc", "etc/motd", "motd", "sysconf", "sysconf/motd", TrailerFilename)

		assert.Equal(t, FileMode, hdrs[2].Mode)
		assert.Equal(t, "welcome", string(hdrs[2].Data))
		assert.Equal(t, DirMode, hdrs[3].Mode)
		assert.Equal(t, "welcome", string(hdrs[4].Data))
	})
}

func TestWriteTree_FIFO(t *testing.T) {
	root := t.TempDir()
	if err := syscall.Mkfifo(filepath.Join(root, "pipe"), 0o600); err != nil {
		t.Skipf("mkfifo: %s", err)
	}

	for _, policy := range []SpecialPolicy{RejectSpecial, FollowSymlinks} {
		w := NewWriter(io.Discard)
		_, err := w.WriteTree(root, WithSpecialPolicy(policy))

		var sfe *SpecialFileError
		assert.ErrorAs(t, err, &sfe, policy.String())
	}

	data, stats := archiveTree(t, root, WithSpecialPolicy(SkipSpecial))
	assert.Len(t, data, 122)
	assert.Equal(t, 1, stats.Skipped)
}
