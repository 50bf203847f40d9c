package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

type registryEntry struct {
	Scenes    []string  `json:"scenes"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SceneRegistry persists the IDs of scenes whose composition failed so
// later runs skip them instead of re-downloading gigabytes only to fail
// the same way.
type SceneRegistry struct {
	path string

	mu     sync.Mutex
	scenes map[string]struct{}
}

func NewSceneRegistry(path string) (*SceneRegistry, error) {
	r := &SceneRegistry{
		path:   path,
		scenes: map[string]struct{}{},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read scene registry: %v", err)
	}

	var entry registryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// A corrupt registry only costs re-downloads; start fresh.
		return r, nil
	}
	for _, id := range entry.Scenes {
		r.scenes[id] = struct{}{}
	}
	return r, nil
}

func (r *SceneRegistry) Contains(sceneID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.scenes[sceneID]
	return ok
}

func (r *SceneRegistry) Add(sceneID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scenes[sceneID]; ok {
		return nil
	}
	r.scenes[sceneID] = struct{}{}
	return r.flushLocked()
}

func (r *SceneRegistry) flushLocked() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %v", err)
	}

	ids := make([]string, 0, len(r.scenes))
	for id := range r.scenes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	jsonData, err := json.Marshal(registryEntry{Scenes: ids, UpdatedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal scene registry: %v", err)
	}

	tmpFile := r.path + ".tmp"
	if err := os.WriteFile(tmpFile, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write temp registry file: %v", err)
	}
	if err := os.Rename(tmpFile, r.path); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp registry file: %v", err)
	}
	return nil
}
