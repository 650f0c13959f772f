package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/voltlog/voltlog/internal/models"
)

// Store 本地持久化：整个应用状态作为不透明 blob 读写
type Store interface {
	Load() (models.AppState, error)
	Save(state models.AppState) error
	Clear() error
}

// FileStore 把状态存为单个 JSON 文件
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore 创建文件存储
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load 读取状态，文件不存在时返回空状态
func (s *FileStore) Load() (models.AppState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.AppState{}, nil
		}
		return models.AppState{}, fmt.Errorf("read state file: %w", err)
	}

	var state models.AppState
	if err := json.Unmarshal(data, &state); err != nil {
		return models.AppState{}, fmt.Errorf("decode state file: %w", err)
	}
	return state, nil
}

// Save 写入状态，先写临时文件再改名，避免写一半的状态落盘
func (s *FileStore) Save(state models.AppState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Clear 删除状态文件
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove state file: %w", err)
	}
	return nil
}
