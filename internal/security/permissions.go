package security

import (
	"fmt"
	"os"
)

const (
	// PermLogFile is for the server log.
	// rw-r----- (0640)
	PermLogFile os.FileMode = 0640

	// PermDBFile is for the sqlite database.
	// rw-r----- (0640)
	PermDBFile os.FileMode = 0640

	// PermArchive is for downloaded artifact archives, which are only read
	// back by the extractor.
	// rw------- (0600)
	PermArchive os.FileMode = 0600

	// PermExecutable is for the installed server binary.
	// rwxr-x--- (0750)
	PermExecutable os.FileMode = 0750

	// PermDirectory is for release directories.
	// rwxr-x--- (0750)
	PermDirectory os.FileMode = 0750

	// PermPublicFile is for files served to visitors, such as gallery images.
	// rw-r--r-- (0644)
	PermPublicFile os.FileMode = 0644
)

// CreateSecureFile creates a new file with the given permissions, bypassing
// the umask. If the file exists, it will be truncated.
func CreateSecureFile(path string, perm os.FileMode) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return nil, fmt.Errorf("failed to create secure file: %w", err)
	}

	if err := os.Chmod(path, perm); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to set file permissions: %w", err)
	}

	return file, nil
}

// CreateExclusiveFile creates a file that must not exist yet.
// The returned error satisfies errors.Is(err, os.ErrExist) on a name clash.
func CreateExclusiveFile(path string, perm os.FileMode) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, perm)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, perm); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to set file permissions: %w", err)
	}
	return file, nil
}

// CreateSecureDir creates a directory (and parents) and forces its
// permissions.
func CreateSecureDir(path string, perm os.FileMode) error {
	if err := os.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("failed to create secure directory: %w", err)
	}

	if err := os.Chmod(path, perm); err != nil {
		return fmt.Errorf("failed to set directory permissions: %w", err)
	}

	return nil
}

// IsWorldWritable checks if a file is writable by others.
func IsWorldWritable(perm os.FileMode) bool {
	return perm&0002 != 0
}
