package initramfs

// File mode and permission bits
type Mode uint32

// The two modes given to members created from a directory tree.
const (
	DirMode  Mode = Mode_Dir | 0o755
	FileMode Mode = Mode_File | 0o644
)

// Formats the mode the way `ls -l` does, e.g. "drwxr-xr-x".
func (m Mode) String() string {
	var s = [...]byte{'-', '-', '-', '-', '-', '-', '-', '-', '-', '-'}

	switch m.FileType() {
	case Mode_Dir:
		s[0] = 'd'
	case Mode_Socket:
		s[0] = 's'
	case Mode_Symlink:
		s[0] = 'l'
	case Mode_BlockDevice:
		s[0] = 'b'
	case Mode_CharDevice:
		s[0] = 'c'
	case Mode_FIFO:
		s[0] = 'p'
	}

	const rwx = "rwx"
	for i := 0; i < 9; i++ {
		if m&(1<<(8-i)) != 0 {
			s[1+i] = rwx[i%3]
		}
	}

	return string(s[:])
}

func (m Mode) FileType() Mode { return m & Mode_FileTypeMask }
func (m Mode) Perms() int     { return int(m & Mode_PermsMask) }

func (m Mode) Symlink() bool { return m.FileType() == Mode_Symlink }
func (m Mode) File() bool    { return m.FileType() == Mode_File }
func (m Mode) Dir() bool     { return m.FileType() == Mode_Dir }

// Returns the mode with its permission bits replaced by perms.
func (m Mode) WithPerms(perms int) Mode {
	return (m &^ Mode_PermsMask) | (Mode(perms) & Mode_PermsMask)
}

const (
	Mode_FileTypeMask Mode = 0o170_000
	Mode_Socket       Mode = 0o140_000 // File type for sockets.
	Mode_Symlink      Mode = 0o120_000 // File type for symbolic links.
	Mode_File         Mode = 0o100_000 // File type for regular files.
	Mode_BlockDevice  Mode = 0o060_000 // File type for block devices.
	Mode_Dir          Mode = 0o040_000 // File type for directories.
	Mode_CharDevice   Mode = 0o020_000 // File type for character devices.
	Mode_FIFO         Mode = 0o010_000 // File type for named pipes or FIFO's.
	Mode_PermsMask    Mode = 0o000_777 // Permission bits (read/write/execute for user, group and other).
)
