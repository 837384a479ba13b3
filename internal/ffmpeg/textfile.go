package ffmpeg

import (
	"fmt"
	"os"
	"path/filepath"
)

// TextFile is a file read by drawtext. Writes replace the whole content
// at once: the new text goes to a temporary file in the same directory
// which is then renamed over the old one, so ffmpeg never reads a
// partially written string.
type TextFile struct {
	path string
}

// NewTextFile creates the file with initial content.
func NewTextFile(path, initial string) (*TextFile, error) {
	f := &TextFile{path: path}
	if err := f.Write(initial); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the file path.
func (f *TextFile) Path() string { return f.path }

// Write atomically replaces the file content.
func (f *TextFile) Write(text string) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("create overlay text: %w", err)
	}
	name := tmp.Name()

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write overlay text: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("write overlay text: %w", err)
	}
	if err := os.Rename(name, f.path); err != nil {
		os.Remove(name)
		return fmt.Errorf("replace overlay text: %w", err)
	}
	return nil
}

// Remove deletes the file.
func (f *TextFile) Remove() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
