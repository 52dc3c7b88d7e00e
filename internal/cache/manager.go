package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/text/unicode/norm"

	"github.com/dgnsrekt/voicepipe/internal/audio"
)

// Manager layers the memory tier over the optional disk tier. Reads promote
// disk hits into memory; writes go to both.
type Manager struct {
	memory *MemoryCache
	disk   *DiskCache // nil when no disk path is configured
	config Config

	cleanupStop chan struct{}
	cleanupWg   sync.WaitGroup
	closeOnce   sync.Once

	mu    sync.Mutex
	stats ManagerStats
}

// ManagerStats aggregates hits across both tiers.
type ManagerStats struct {
	MemoryHits  int64
	DiskHits    int64
	Misses      int64
	Promotions  int64
	CleanupRuns int64
	LastCleanup time.Time

	Memory Stats
	Disk   Stats
}

// NewManager builds the cache tiers described by config.
func NewManager(config Config) (*Manager, error) {
	if config.MemoryCapacity <= 0 {
		config.MemoryCapacity = DefaultConfig().MemoryCapacity
	}

	m := &Manager{
		memory:      NewMemoryCache(config.MemoryCapacity),
		config:      config,
		cleanupStop: make(chan struct{}),
	}

	if config.DiskPath != "" {
		disk, err := NewDiskCache(config.DiskPath, config.DiskCapacity, config.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		m.disk = disk
	}

	if config.CleanupInterval > 0 {
		m.cleanupWg.Add(1)
		go m.cleanupLoop(config.CleanupInterval)
	}

	return m, nil
}

// Get looks a key up in memory, then on disk.
func (m *Manager) Get(key string) ([]byte, bool) {
	if data, ok := m.memory.Get(key); ok {
		m.record(func(s *ManagerStats) { s.MemoryHits++ })
		return data, true
	}

	if m.disk != nil {
		if data, ok := m.disk.Get(key); ok {
			promoted := m.memory.Put(key, data) == nil
			m.record(func(s *ManagerStats) {
				s.DiskHits++
				if promoted {
					s.Promotions++
				}
			})
			return data, true
		}
	}

	m.record(func(s *ManagerStats) { s.Misses++ })
	return nil, false
}

// Put stores a value in every tier that can hold it.
func (m *Manager) Put(key string, value []byte) error {
	memErr := m.memory.Put(key, value)
	if m.disk == nil {
		return memErr
	}
	if err := m.disk.Put(key, value); err != nil {
		return fmt.Errorf("disk cache: %w", err)
	}
	if errors.Is(memErr, ErrItemTooLarge) {
		return nil
	}
	return memErr
}

// GetAudio returns cached samples and their sample rate.
func (m *Manager) GetAudio(key string) ([]int16, int, bool) {
	data, ok := m.Get(key)
	if !ok {
		return nil, 0, false
	}
	samples, rate, err := decodeSegment(data)
	if err != nil {
		log.Debug("dropping corrupt cache entry", "key", key, "error", err)
		_ = m.Delete(key)
		return nil, 0, false
	}
	return samples, rate, true
}

// PutAudio stores synthesized samples under key.
func (m *Manager) PutAudio(key string, samples []int16, sampleRate int) error {
	return m.Put(key, encodeSegment(samples, sampleRate))
}

// Delete removes a key from both tiers.
func (m *Manager) Delete(key string) error {
	err := m.memory.Delete(key)
	if m.disk != nil {
		err = errors.Join(err, m.disk.Delete(key))
	}
	return err
}

// Clear empties both tiers.
func (m *Manager) Clear() error {
	err := m.memory.Clear()
	if m.disk != nil {
		err = errors.Join(err, m.disk.Clear())
	}
	return err
}

// Cleanup expires entries older than the configured TTL.
func (m *Manager) Cleanup() int {
	if m.config.TTL <= 0 {
		return 0
	}

	removed := m.memory.Prune(m.config.TTL)
	if m.disk != nil {
		removed += m.disk.RemoveOlderThan(time.Now().Add(-m.config.TTL))
		if err := m.disk.Flush(); err != nil {
			log.Warn("failed to save cache index", "error", err)
		}
	}

	m.record(func(s *ManagerStats) {
		s.CleanupRuns++
		s.LastCleanup = time.Now()
	})
	return removed
}

// Stats returns a snapshot of both tiers.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	stats := m.stats
	m.mu.Unlock()

	stats.Memory = m.memory.Stats()
	if m.disk != nil {
		stats.Disk = m.disk.Stats()
	}
	return stats
}

// Close stops the cleanup loop and persists the disk index.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.cleanupStop)
		m.cleanupWg.Wait()
		if m.disk != nil {
			err = m.disk.Close()
		}
	})
	return err
}

func (m *Manager) cleanupLoop(interval time.Duration) {
	defer m.cleanupWg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.Cleanup(); n > 0 {
				log.Debug("expired cached segments", "count", n)
			}
		case <-m.cleanupStop:
			return
		}
	}
}

func (m *Manager) record(update func(*ManagerStats)) {
	m.mu.Lock()
	update(&m.stats)
	m.mu.Unlock()
}

// GenerateCacheKey derives a stable key for a synthesized segment. Text is
// NFC-normalized and trimmed so equivalent spellings share an entry.
func GenerateCacheKey(text, voice string, speed float64) string {
	text = strings.TrimSpace(norm.NFC.String(text))
	data := fmt.Sprintf("%s|%s|%.2f", text, voice, speed)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}

// A cached segment is a little-endian uint32 sample rate followed by PCM.
const segmentHeaderSize = 4

func encodeSegment(samples []int16, sampleRate int) []byte {
	buf := make([]byte, segmentHeaderSize, segmentHeaderSize+len(samples)*audio.BytesPerSample)
	binary.LittleEndian.PutUint32(buf, uint32(sampleRate))
	return append(buf, audio.SamplesToBytes(samples)...)
}

func decodeSegment(data []byte) ([]int16, int, error) {
	if len(data) < segmentHeaderSize {
		return nil, 0, ErrCacheCorrupted
	}
	rate := int(binary.LittleEndian.Uint32(data))
	if rate <= 0 {
		return nil, 0, ErrCacheCorrupted
	}
	samples, err := audio.BytesToSamples(data[segmentHeaderSize:])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	return samples, rate, nil
}
