package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Store persists scenes by ID.
type Store interface {
	List(ctx context.Context) ([]string, error)
	Load(ctx context.Context, id string) (*Scene, error)
	Save(ctx context.Context, s *Scene) error
	Delete(ctx context.Context, id string) error
}

// FileStore keeps one file per scene in a directory. Writes go through a temp file
// and a rename so readers never see a partial scene.
type FileStore struct {
	dir   string
	codec Codec
	mu    sync.Mutex
}

// NewFileStore creates dir if needed. codec is used for writing; any known codec is read.
func NewFileStore(dir string, codec Codec) (*FileStore, error) {
	if codec == nil {
		codec = jsonCodec{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scenes dir: %w", err)
	}
	return &FileStore{dir: dir, codec: codec}, nil
}

func (f *FileStore) Dir() string { return f.dir }

func (f *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := sceneID(e.Name())
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *FileStore) Load(ctx context.Context, id string) (*Scene, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	path, ok := f.find(id)
	if !ok {
		return nil, ErrSceneNotFound
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, _ := CodecForPath(path)
	s, err := Decode(c, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	// The file name is authoritative.
	s.ID = id
	return s, nil
}

func (f *FileStore) Save(ctx context.Context, s *Scene) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(f.codec, s)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	target := filepath.Join(f.dir, s.ID+f.codec.Ext())
	tmp, err := os.CreateTemp(f.dir, ".scene-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return err
	}

	// Drop copies of the same scene left by another codec.
	for _, path := range f.candidates(s.ID)[1:] {
		_ = os.Remove(path)
	}
	return nil
}

func (f *FileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateID(id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	removed := false
	for _, path := range f.candidates(id) {
		err := os.Remove(path)
		switch {
		case err == nil:
			removed = true
		case !errors.Is(err, fs.ErrNotExist):
			return err
		}
	}
	if !removed {
		return ErrSceneNotFound
	}
	return nil
}

// find returns the file holding id, preferring the store's own codec.
func (f *FileStore) find(id string) (string, bool) {
	for _, path := range f.candidates(id) {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func (f *FileStore) candidates(id string) []string {
	paths := []string{filepath.Join(f.dir, id+f.codec.Ext())}
	for _, c := range codecs {
		if c.Ext() != f.codec.Ext() {
			paths = append(paths, filepath.Join(f.dir, id+c.Ext()))
		}
	}
	return append(paths, filepath.Join(f.dir, id+".yml"))
}

func sceneID(name string) (string, bool) {
	if strings.HasPrefix(name, ".") {
		return "", false
	}
	if strings.HasSuffix(name, ".yml") {
		return strings.TrimSuffix(name, ".yml"), true
	}
	c, ok := CodecForPath(name)
	if !ok {
		return "", false
	}
	id := strings.TrimSuffix(name, c.Ext())
	return id, id != ""
}
