//go:build !linux

package previewcache

import (
	"net"
	"os"
	"path/filepath"
)

// listen binds a Unix socket under a private temp directory on platforms
// without Linux's abstract socket namespace.
func listen(token string) (*net.UnixListener, string, error) {
	dir, err := os.MkdirTemp("", "microvm-backup-preview-")
	if err != nil {
		return nil, "", err
	}
	name := filepath.Join(dir, token+".sock")
	l, err := net.Listen("unix", name)
	if err != nil {
		os.RemoveAll(dir)
		return nil, "", err
	}
	return l.(*net.UnixListener), name, nil
}

// closeListenResource removes the temp directory holding the socket file.
func closeListenResource(name string) {
	os.Remove(name)
	os.Remove(filepath.Dir(name))
}
