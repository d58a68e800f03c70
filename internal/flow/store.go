package flow

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultIdleTimeout は操作のないControllerを破棄するまでの時間。
const DefaultIdleTimeout = 30 * time.Minute

// StoreConfig はStoreの設定。
type StoreConfig struct {
	IdleTimeout     time.Duration // 最終操作からの保持時間
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultStoreConfig はデフォルトの設定を返す。
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		IdleTimeout:     DefaultIdleTimeout,
		CleanupInterval: 5 * time.Minute,
	}
}

// entry はControllerと最終アクセス時刻を保持する。
type entry struct {
	controller *Controller
	lastAccess time.Time
}

// Store はflow_id CookieからControllerを引くインメモリのストア。
// 書類のアップロード待ちファイルを含むため永続化しない。
type Store struct {
	config StoreConfig
	deps   Deps

	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewStore は新しいStoreを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewStore(config StoreConfig, deps Deps) *Store {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}

	s := &Store{
		config:  config,
		deps:    deps,
		entries: make(map[string]*entry),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Get は指定IDのControllerを返す。存在しない、または期限切れの場合はfalse。
func (s *Store) Get(id string) (*Controller, bool) {
	if id == "" {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	now := s.now()
	if now.Sub(e.lastAccess) > s.config.IdleTimeout {
		delete(s.entries, id)
		return nil, false
	}
	e.lastAccess = now
	return e.controller, true
}

// GetOrCreate は指定IDのControllerを返す。なければ新しいIDで作成する。
// 返すIDが引数と異なる場合、呼び出し側はCookieを更新する。
func (s *Store) GetOrCreate(id string) (string, *Controller) {
	if c, ok := s.Get(id); ok {
		return id, c
	}

	newID := uuid.NewString()
	c := NewController(s.deps)

	s.mu.Lock()
	s.entries[newID] = &entry{controller: c, lastAccess: s.now()}
	s.mu.Unlock()

	return newID, c
}

// Delete は指定IDのControllerを破棄する。
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Len は保持しているControllerの数を返す。テスト用。
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.cleanup(); n > 0 {
				slog.Debug("expired flows removed", slog.Int("count", n))
			}
		case <-s.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからIdleTimeoutを超えたエントリを削除し、削除数を返す。
func (s *Store) cleanup() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if now.Sub(e.lastAccess) > s.config.IdleTimeout {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}
