// Package fsutil provides the filesystem seam used by the mesh codec and the
// compressor, with an OS implementation and an in-memory one for tests.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileSystem abstracts the filesystem operations the pipeline performs.
type FileSystem interface {
	// Open opens the named file for reading.
	Open(name string) (fs.File, error)

	// ReadFile reads the named file and returns its contents.
	ReadFile(name string) ([]byte, error)

	// WriteFile writes data to the named file, creating it if necessary.
	WriteFile(name string, data []byte, perm os.FileMode) error

	// CreateTemp creates a new file in dir whose name starts with pattern
	// (a "*" is replaced by a random string) and returns its name.
	CreateTemp(dir, pattern string) (string, io.WriteCloser, error)

	// MkdirTemp creates a new temporary directory and returns its path.
	MkdirTemp(dir, pattern string) (string, error)

	// Rename moves oldpath to newpath, replacing newpath.
	Rename(oldpath, newpath string) error

	// Stat returns a FileInfo describing the named file.
	Stat(name string) (fs.FileInfo, error)

	// Remove removes the named file or empty directory.
	Remove(name string) error

	// RemoveAll removes path and any children it contains.
	RemoveAll(path string) error
}

// Exists reports whether name can be stat'ed.
func Exists(fsys FileSystem, name string) bool {
	_, err := fsys.Stat(name)
	return err == nil
}

// WriteAtomic writes a file through write into a temporary sibling of path
// and renames it into place. If anything fails the temporary file is
// removed and path is left as it was.
func WriteAtomic(fsys FileSystem, path string, write func(io.Writer) error) (err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, w, err := fsys.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = fsys.Remove(tmp)
		}
	}()

	if err = write(w); err != nil {
		_ = w.Close()
		return err
	}
	if err = w.Close(); err != nil {
		return err
	}
	return fsys.Rename(tmp, path)
}

// OSFileSystem implements FileSystem using the os package.
type OSFileSystem struct{}

// Open opens the named file.
func (OSFileSystem) Open(name string) (fs.File, error) {
	return os.Open(name)
}

// ReadFile reads the named file.
func (OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// WriteFile writes data to the named file.
func (OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// CreateTemp creates a temporary file.
func (OSFileSystem) CreateTemp(dir, pattern string) (string, io.WriteCloser, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", nil, err
	}
	return f.Name(), f, nil
}

// MkdirTemp creates a temporary directory.
func (OSFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

// Rename renames a file.
func (OSFileSystem) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// Stat returns file info for the named file.
func (OSFileSystem) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

// Remove removes the named file or directory.
func (OSFileSystem) Remove(name string) error {
	return os.Remove(name)
}

// RemoveAll removes the path and any children.
func (OSFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// ErrInjected is returned by MemoryFileSystem operations that were set to
// fail.
var ErrInjected = errors.New("injected failure")

// MemoryFileSystem provides an in-memory filesystem for testing. Directories
// are implicit. FailRename and FailWrite make the matching operations
// return ErrInjected.
type MemoryFileSystem struct {
	mu      sync.RWMutex
	files   map[string][]byte
	dirs    map[string]bool
	counter int

	FailRename bool
	FailWrite  bool
}

// NewMemoryFileSystem creates a new in-memory filesystem.
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
	}
}

func notExist(op, name string) error {
	return &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
}

// Open opens a file for reading.
func (m *MemoryFileSystem) Open(name string) (fs.File, error) {
	data, err := m.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return &memFileReader{name: filepath.Clean(name), data: data}, nil
}

// ReadFile reads a file's contents.
func (m *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	data, ok := m.files[name]
	if !ok {
		return nil, notExist("read", name)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteFile writes data to a file.
func (m *MemoryFileSystem) WriteFile(name string, data []byte, _ os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrite {
		return &fs.PathError{Op: "write", Path: name, Err: ErrInjected}
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.files[filepath.Clean(name)] = cp
	return nil
}

// CreateTemp creates a temporary file that exists, empty, until its writer
// is closed.
func (m *MemoryFileSystem) CreateTemp(dir, pattern string) (string, io.WriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := m.tempName(dir, pattern)
	m.files[name] = []byte{}
	return name, &memFileWriter{fs: m, name: name}, nil
}

// MkdirTemp creates a temporary directory.
func (m *MemoryFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := m.tempName(dir, pattern)
	m.dirs[name] = true
	return name, nil
}

func (m *MemoryFileSystem) tempName(dir, pattern string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	m.counter++
	suffix := fmt.Sprintf("%06d", m.counter)
	if strings.Contains(pattern, "*") {
		return filepath.Join(dir, strings.Replace(pattern, "*", suffix, 1))
	}
	return filepath.Join(dir, pattern+suffix)
}

// Rename moves a file.
func (m *MemoryFileSystem) Rename(oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailRename {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: ErrInjected}
	}
	oldpath, newpath = filepath.Clean(oldpath), filepath.Clean(newpath)
	data, ok := m.files[oldpath]
	if !ok {
		return notExist("rename", oldpath)
	}
	delete(m.files, oldpath)
	m.files[newpath] = data
	return nil
}

// Stat returns file info.
func (m *MemoryFileSystem) Stat(name string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	if m.dirs[name] {
		return &memFileInfo{name: filepath.Base(name), isDir: true}, nil
	}
	data, ok := m.files[name]
	if !ok {
		return nil, notExist("stat", name)
	}
	return &memFileInfo{name: filepath.Base(name), size: int64(len(data)), mode: 0o644}, nil
}

// Remove removes a file or directory.
func (m *MemoryFileSystem) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = filepath.Clean(name)
	if _, ok := m.files[name]; ok {
		delete(m.files, name)
		return nil
	}
	if m.dirs[name] {
		delete(m.dirs, name)
		return nil
	}
	return notExist("remove", name)
}

// RemoveAll removes a path and its children.
func (m *MemoryFileSystem) RemoveAll(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	prefix := path + string(filepath.Separator)
	for name := range m.files {
		if name == path || strings.HasPrefix(name, prefix) {
			delete(m.files, name)
		}
	}
	for name := range m.dirs {
		if name == path || strings.HasPrefix(name, prefix) {
			delete(m.dirs, name)
		}
	}
	return nil
}

// Files returns the sorted names of every stored file.
func (m *MemoryFileSystem) Files() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.files))
	for name := range m.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// memFileReader implements fs.File for reading.
type memFileReader struct {
	name   string
	data   []byte
	offset int
}

func (f *memFileReader) Read(p []byte) (int, error) {
	if f.offset >= len(f.data) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.offset:])
	f.offset += n
	return n, nil
}

func (f *memFileReader) Close() error { return nil }

func (f *memFileReader) Stat() (fs.FileInfo, error) {
	return &memFileInfo{name: filepath.Base(f.name), size: int64(len(f.data))}, nil
}

// memFileWriter buffers writes and publishes them on Close.
type memFileWriter struct {
	fs   *MemoryFileSystem
	name string
	buf  []byte
}

func (f *memFileWriter) Write(p []byte) (int, error) {
	f.fs.mu.RLock()
	fail := f.fs.FailWrite
	f.fs.mu.RUnlock()
	if fail {
		return 0, &fs.PathError{Op: "write", Path: f.name, Err: ErrInjected}
	}
	f.buf = append(f.buf, p...)
	return len(p), nil
}

func (f *memFileWriter) Close() error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	if _, ok := f.fs.files[f.name]; ok {
		f.fs.files[f.name] = f.buf
	}
	return nil
}

// memFileInfo implements fs.FileInfo.
type memFileInfo struct {
	name  string
	size  int64
	mode  os.FileMode
	isDir bool
}

func (i *memFileInfo) Name() string       { return i.name }
func (i *memFileInfo) Size() int64        { return i.size }
func (i *memFileInfo) Mode() os.FileMode  { return i.mode }
func (i *memFileInfo) ModTime() time.Time { return time.Time{} }
func (i *memFileInfo) IsDir() bool        { return i.isDir }
func (i *memFileInfo) Sys() any           { return nil }
