package speech

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileStore keeps generated audio on local disk under a public URL prefix.
type FileStore struct {
	root    string
	baseURL string
}

func NewFileStore(root, publicBaseURL string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	return &FileStore{root: root, baseURL: strings.TrimSuffix(publicBaseURL, "/")}, nil
}

// Root is the directory files are written to.
func (s *FileStore) Root() string {
	return s.root
}

// Save writes data under a fresh random name with the given extension.
func (s *FileStore) Save(data []byte, ext string) (string, error) {
	name := strings.ReplaceAll(uuid.NewString(), "-", "") + ext
	if err := os.WriteFile(filepath.Join(s.root, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write media file: %w", err)
	}
	return name, nil
}

// URL is where the media handler serves name.
func (s *FileStore) URL(name string) string {
	return s.baseURL + "/media/" + url.PathEscape(name)
}
