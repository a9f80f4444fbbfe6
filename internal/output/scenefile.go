package output

import (
	"fmt"
	"os"
	"path/filepath"
)

// SceneFile writes the current scene name to a plain text file. Each write
// replaces the whole file through a rename so readers never see a partial
// value.
type SceneFile struct {
	path string
}

// NewSceneFile returns a writer for path.
func NewSceneFile(path string) *SceneFile {
	return &SceneFile{path: path}
}

// Path returns the output location.
func (f *SceneFile) Path() string {
	return f.path
}

// WriteScene overwrites the file with scene.
func (f *SceneFile) WriteScene(scene string) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("create temporary scene file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(scene); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write scene: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close scene file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod scene file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace scene file: %w", err)
	}
	return nil
}

// ReadScene returns the scene currently stored in the file.
func (f *SceneFile) ReadScene() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
