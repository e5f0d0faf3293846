package fs

import "os"

// Real is the production FS implementation, backed directly by the os package.
type Real struct{}

// NewReal returns a Real filesystem.
func NewReal() *Real { return &Real{} }

func (Real) Open(path string) (File, error) {
	return os.Open(path)
}

func (Real) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(path, flag, perm)
}

func (Real) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (Real) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (Real) Remove(path string) error {
	return os.Remove(path)
}

func (Real) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (Real) Link(oldname, newname string) error {
	return os.Link(oldname, newname)
}

var _ FS = Real{}
