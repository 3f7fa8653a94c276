// Package fsutil contains filesystem utilities shared by the training driver.
package fsutil

import (
	"os"
	"os/user"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// DirPermMode is the permission (before umask) used when creating directories.
var DirPermMode = os.FileMode(0770)

// FileExists returns whether the file or directory exists, or an error
// if something went wrong in the filesystem.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to FileExists(%q)", path)
}

// MustFileExists returns whether the file or directory exists.
// It panics on filesystem errors.
func MustFileExists(path string) bool {
	exists, err := FileExists(path)
	if err != nil {
		panic(err)
	}
	return exists
}

// EnsureDir creates dir (and any missing parents) if it doesn't exist yet.
// It fails if the path exists but is a regular file.
func EnsureDir(dir string) error {
	fi, err := os.Stat(dir)
	if err == nil {
		if !fi.IsDir() {
			return errors.Errorf("path %q exists but it's a normal file, not a directory", dir)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to os.Stat(%q)", dir)
	}
	if err = os.MkdirAll(dir, DirPermMode); err != nil {
		return errors.Wrapf(err, "trying to create dir %q", dir)
	}
	return nil
}

// AtomicWriteFile writes contents to a temporary file in the same directory
// as filePath and renames it over filePath. A reader never observes a missing
// or partially written file, even if the process is interrupted mid-write.
func AtomicWriteFile(filePath string, contents []byte, perm os.FileMode) error {
	dir := filepath.Dir(filePath)
	tmpFile, err := os.CreateTemp(dir, filepath.Base(filePath)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary file in %q", dir)
	}
	tmpName := tmpFile.Name()
	removeTmp := func() { _ = os.Remove(tmpName) }
	if _, err = tmpFile.Write(contents); err != nil {
		_ = tmpFile.Close()
		removeTmp()
		return errors.Wrapf(err, "failed to write %d bytes to %q", len(contents), tmpName)
	}
	if err = tmpFile.Close(); err != nil {
		removeTmp()
		return errors.Wrapf(err, "failed to close %q", tmpName)
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		removeTmp()
		return errors.Wrapf(err, "failed to os.Chmod(%q, %s)", tmpName, perm)
	}
	if err = os.Rename(tmpName, filePath); err != nil {
		removeTmp()
		return errors.Wrapf(err, "failed to rename %q to %q", tmpName, filePath)
	}
	return nil
}

// ReplaceTildeInDir by the user's home directory. Returns dir if it doesn't start with "~".
//
// It returns an error if `dir` has an unknown user or some other filesystem
// error (e.g: `~unknown/...`).
func ReplaceTildeInDir(dir string) (string, error) {
	if len(dir) == 0 {
		return dir, nil
	}
	if dir[0] != '~' {
		return dir, nil
	}
	var userName string
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		sepIdx := strings.IndexRune(dir, '/')
		if sepIdx == -1 {
			userName = dir[1:]
		} else {
			userName = dir[1:sepIdx]
		}
	}
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to lookup home directory for user in path %q", dir)
	}
	homeDir := usr.HomeDir
	return path.Join(homeDir, dir[1+len(userName):]), nil
}

// MustReplaceTildeInDir by the user's home directory. Returns dir if it
// doesn't start with "~".
//
// It may panic with an error if `dir` has an unknown user (e.g: `~unknown/...`)
func MustReplaceTildeInDir(dir string) string {
	dir, err := ReplaceTildeInDir(dir)
	if err != nil {
		panic(err)
	}
	return dir
}
