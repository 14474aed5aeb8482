package store

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/zeyxx/CYNIC-sub012/block"
	"github.com/zeyxx/CYNIC-sub012/db"
	"github.com/zeyxx/CYNIC-sub012/jsonx"
	"github.com/zeyxx/CYNIC-sub012/logx"
	"github.com/zeyxx/CYNIC-sub012/types"
)

// ChainStore is a database-agnostic PersistenceManager over a
// db.DatabaseProvider, so it works with any backend (LevelDB, bbolt, ...).
type ChainStore struct {
	provider   db.DatabaseProvider
	mu         sync.RWMutex
	latestSlot uint64
	hasBlocks  bool
}

// NewChainStore creates a chain store with the given provider
func NewChainStore(provider db.DatabaseProvider) (*ChainStore, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	store := &ChainStore{provider: provider}

	if err := store.loadLatestSlot(); err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}

	return store, nil
}

// loadLatestSlot loads the highest stored slot from the database
func (s *ChainStore) loadLatestSlot() error {
	key := []byte(PrefixMeta + MetaKeyLatestSlot)
	value, err := s.provider.Get(key)
	if err != nil {
		return fmt.Errorf("failed to get latest slot: %w", err)
	}

	if value == nil {
		// No existing data
		s.hasBlocks = false
		return nil
	}

	if len(value) != 8 {
		return fmt.Errorf("invalid latest slot value length: %d", len(value))
	}

	s.latestSlot = binary.BigEndian.Uint64(value)
	s.hasBlocks = true
	return nil
}

// slotToBlockKey converts a slot number to a block storage key
func slotToBlockKey(slot uint64) []byte {
	key := make([]byte, len(PrefixBlock)+8)
	copy(key, PrefixBlock)
	binary.BigEndian.PutUint64(key[len(PrefixBlock):], slot)
	return key
}

func hashToIndexKey(hash string) []byte {
	return []byte(PrefixBlockHash + hash)
}

func (s *ChainStore) Capabilities() Capabilities {
	return Capabilities{PoJChain: true}
}

// GetPoJHead returns the head descriptor of the highest stored slot
func (s *ChainStore) GetPoJHead() (*types.ChainHead, error) {
	s.mu.RLock()
	hasBlocks := s.hasBlocks
	latest := s.latestSlot
	s.mu.RUnlock()

	if !hasBlocks {
		return nil, nil
	}

	blk, err := s.GetPoJBlockBySlot(latest)
	if err != nil {
		return nil, err
	}
	if blk == nil {
		return nil, fmt.Errorf("head slot %d has no stored block", latest)
	}
	return blk.Head(), nil
}

// StorePoJBlock persists a sealed block and advances the latest-slot meta
func (s *ChainStore) StorePoJBlock(b *block.Block) error {
	if b == nil {
		return fmt.Errorf("block cannot be nil")
	}
	if b.Hash == "" {
		return fmt.Errorf("block at slot %d is not sealed", b.Slot)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := slotToBlockKey(b.Slot)

	exists, err := s.provider.Has(key)
	if err != nil {
		return fmt.Errorf("failed to check block existence: %w", err)
	}
	if exists {
		return fmt.Errorf("block at slot %d already exists", b.Slot)
	}

	value, err := jsonx.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal block: %w", err)
	}

	// block record, hash index and latest-slot meta in one batch
	batch := s.provider.Batch()
	defer batch.Close()

	batch.Put(key, value)

	slotValue := make([]byte, 8)
	binary.BigEndian.PutUint64(slotValue, b.Slot)
	batch.Put(hashToIndexKey(b.Hash), slotValue)

	if !s.hasBlocks || b.Slot > s.latestSlot {
		batch.Put([]byte(PrefixMeta+MetaKeyLatestSlot), slotValue)
	}

	if err := batch.Write(); err != nil {
		return fmt.Errorf("failed to store block: %w", err)
	}

	if !s.hasBlocks || b.Slot > s.latestSlot {
		s.latestSlot = b.Slot
		s.hasBlocks = true
	}

	logx.Info("CHAINSTORE", "Stored block at slot ", b.Slot)
	return nil
}

// GetPoJBlockBySlot retrieves a block by slot number
func (s *ChainStore) GetPoJBlockBySlot(slot uint64) (*block.Block, error) {
	value, err := s.provider.Get(slotToBlockKey(slot))
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", slot, err)
	}
	if value == nil {
		return nil, nil
	}

	var blk block.Block
	if err := jsonx.Unmarshal(value, &blk); err != nil {
		return nil, fmt.Errorf("failed to unmarshal block %d: %w", slot, err)
	}
	return &blk, nil
}

// GetPoJBlockByHash retrieves a block by its hash via the hash index
func (s *ChainStore) GetPoJBlockByHash(hash string) (*block.Block, error) {
	value, err := s.provider.Get(hashToIndexKey(hash))
	if err != nil {
		return nil, fmt.Errorf("failed to get block by hash: %w", err)
	}
	if value == nil {
		return nil, nil
	}
	if len(value) != 8 {
		return nil, fmt.Errorf("invalid hash index value length: %d", len(value))
	}
	return s.GetPoJBlockBySlot(binary.BigEndian.Uint64(value))
}

// GetRecentPoJBlocks returns up to limit most recent blocks, slot-ascending
func (s *ChainStore) GetRecentPoJBlocks(limit int) ([]*block.Block, error) {
	s.mu.RLock()
	hasBlocks := s.hasBlocks
	latest := s.latestSlot
	s.mu.RUnlock()

	if !hasBlocks || limit <= 0 {
		return nil, nil
	}

	from := uint64(0)
	if uint64(limit) <= latest {
		from = latest - uint64(limit) + 1
	}

	keys := make([][]byte, 0, latest-from+1)
	for slot := from; slot <= latest; slot++ {
		keys = append(keys, slotToBlockKey(slot))
	}

	values, err := s.provider.GetBatch(keys)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent blocks: %w", err)
	}

	blocks := make([]*block.Block, 0, len(values))
	for _, key := range keys {
		value, ok := values[string(key)]
		if !ok {
			continue
		}
		var blk block.Block
		if err := jsonx.Unmarshal(value, &blk); err != nil {
			return nil, fmt.Errorf("failed to unmarshal block: %w", err)
		}
		blocks = append(blocks, &blk)
	}
	return blocks, nil
}

// GetPoJStats aggregates stored chain statistics in one prefix walk
func (s *ChainStore) GetPoJStats() (*ChainStats, error) {
	stats := &ChainStats{}

	iterable, ok := s.provider.(db.IterableProvider)
	if !ok {
		return nil, fmt.Errorf("provider does not support iteration")
	}

	var walkErr error
	err := iterable.IteratePrefix([]byte(PrefixBlock), func(key, value []byte) bool {
		var blk block.Block
		if err := jsonx.Unmarshal(value, &blk); err != nil {
			walkErr = fmt.Errorf("failed to unmarshal block record: %w", err)
			return false
		}
		stats.BlockCount++
		stats.TotalJudgments += uint64(len(blk.Judgments))
		return true
	})
	if err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}

	s.mu.RLock()
	if s.hasBlocks {
		stats.LatestSlot = s.latestSlot
	}
	s.mu.RUnlock()

	if head, err := s.GetPoJHead(); err == nil && head != nil {
		stats.HeadHash = head.Hash
	}

	return stats, nil
}

// VerifyPoJChain re-walks the chain from slot 0 checking hash integrity and
// linkage between every adjacent pair
func (s *ChainStore) VerifyPoJChain() (*VerifyReport, error) {
	s.mu.RLock()
	hasBlocks := s.hasBlocks
	latest := s.latestSlot
	s.mu.RUnlock()

	report := &VerifyReport{Valid: true}
	if !hasBlocks {
		return report, nil
	}

	var prevHash string
	for slot := uint64(0); slot <= latest; slot++ {
		blk, err := s.GetPoJBlockBySlot(slot)
		if err != nil {
			return nil, err
		}
		if blk == nil {
			report.Valid = false
			report.BrokenLinks = append(report.BrokenLinks, BrokenLink{
				Slot:   slot,
				Reason: "missing block",
			})
			prevHash = ""
			continue
		}

		computed, err := blk.ComputeHash()
		if err != nil {
			return nil, err
		}
		if computed != blk.Hash {
			report.Valid = false
			report.BrokenLinks = append(report.BrokenLinks, BrokenLink{
				Slot:   slot,
				Reason: "hash mismatch",
			})
		}
		if slot > 0 && prevHash != "" && blk.PrevHash != prevHash {
			report.Valid = false
			report.BrokenLinks = append(report.BrokenLinks, BrokenLink{
				Slot:   slot,
				Reason: "prev_hash mismatch",
			})
		}

		report.BlocksChecked++
		prevHash = blk.Hash
	}

	return report, nil
}

// MustClose closes the underlying database provider
func (s *ChainStore) MustClose() {
	if err := s.provider.Close(); err != nil {
		logx.Error("CHAINSTORE", "Failed to close provider")
	}
}
