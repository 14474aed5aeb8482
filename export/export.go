package export

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/zeyxx/CYNIC-sub012/block"
	"github.com/zeyxx/CYNIC-sub012/logx"
	"github.com/zeyxx/CYNIC-sub012/store"
)

// BundleVersion is the current export bundle format version.
const BundleVersion = 1

// DefaultExportLimit bounds an export when no limit is given.
const DefaultExportLimit = 100

// Bundle is a transient, versioned chain window for backup and recovery.
// Blocks are slot-ascending.
type Bundle struct {
	Version    int               `json:"version"`
	ExportedAt int64             `json:"exportedAt"`
	ChainStats *store.ChainStats `json:"chainStats,omitempty"`
	Blocks     []*block.Block    `json:"blocks"`
}

// Options controls which chain window is exported.
type Options struct {
	FromBlock uint64
	Limit     int
}

// ImportOptions controls import behavior.
type ImportOptions struct {
	ValidateLinks bool
	SkipExisting  bool
}

// BlockError records one failed write during import.
type BlockError struct {
	Slot  uint64 `json:"slot"`
	Error string `json:"error"`
}

// ImportReport summarizes an import run.
type ImportReport struct {
	Imported int          `json:"imported"`
	Skipped  int          `json:"skipped"`
	Errors   []BlockError `json:"errors,omitempty"`
}

// Export fetches recent blocks, filters by slot and serializes them into a
// versioned bundle with aggregate stats.
func Export(persistence store.PersistenceManager, opts Options) (*Bundle, error) {
	bundle := &Bundle{
		Version:    BundleVersion,
		ExportedAt: time.Now().UnixMilli(),
		Blocks:     []*block.Block{},
	}

	if persistence == nil || !persistence.Capabilities().PoJChain {
		logx.Warn("EXPORT", "Persistence unavailable, exporting empty bundle")
		return bundle, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultExportLimit
	}

	blocks, err := persistence.GetRecentPoJBlocks(limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch recent blocks")
	}

	for _, b := range blocks {
		if b.Slot >= opts.FromBlock {
			bundle.Blocks = append(bundle.Blocks, b)
		}
	}
	sort.Slice(bundle.Blocks, func(i, j int) bool {
		return bundle.Blocks[i].Slot < bundle.Blocks[j].Slot
	})

	stats, err := persistence.GetPoJStats()
	if err != nil {
		logx.Warn("EXPORT", "Failed to collect chain stats: ", err)
	} else {
		bundle.ChainStats = stats
	}

	logx.Info("EXPORT", "Exported ", len(bundle.Blocks), " blocks")
	return bundle, nil
}

// Import persists a bundle's blocks in slot order. With ValidateLinks set,
// any broken adjacent link aborts the entire import before a single write;
// after that structural gate has passed, per-block write errors are
// collected without aborting the remainder.
func Import(persistence store.PersistenceManager, bundle *Bundle, opts ImportOptions) (*ImportReport, error) {
	if bundle == nil {
		return nil, errors.New("bundle is nil")
	}
	if bundle.Version != BundleVersion {
		return nil, errors.Errorf("unsupported bundle version %d", bundle.Version)
	}
	if persistence == nil || !persistence.Capabilities().PoJChain {
		return nil, errors.New("persistence unavailable")
	}

	blocks := make([]*block.Block, len(bundle.Blocks))
	copy(blocks, bundle.Blocks)
	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].Slot < blocks[j].Slot
	})

	if opts.ValidateLinks {
		for i := 1; i < len(blocks); i++ {
			if blocks[i].PrevHash != blocks[i-1].Hash {
				return nil, errors.Errorf(
					"broken link: block %d prev_hash does not match block %d hash",
					blocks[i].Slot, blocks[i-1].Slot,
				)
			}
		}
	}

	report := &ImportReport{}
	for _, b := range blocks {
		if opts.SkipExisting {
			existing, err := persistence.GetPoJBlockBySlot(b.Slot)
			if err != nil {
				report.Errors = append(report.Errors, BlockError{Slot: b.Slot, Error: err.Error()})
				continue
			}
			if existing != nil {
				report.Skipped++
				continue
			}
		}

		if err := persistence.StorePoJBlock(b); err != nil {
			logx.Warn("IMPORT", "Failed to store block ", b.Slot, ": ", err)
			report.Errors = append(report.Errors, BlockError{Slot: b.Slot, Error: err.Error()})
			continue
		}
		report.Imported++
	}

	logx.Info("IMPORT", "Imported ", report.Imported, " blocks, skipped ", report.Skipped)
	return report, nil
}

// VerifyIntegrity delegates to the persistence layer's full chain re-walk.
func VerifyIntegrity(persistence store.PersistenceManager) (*store.VerifyReport, error) {
	if persistence == nil || !persistence.Capabilities().PoJChain {
		return nil, errors.New("persistence unavailable")
	}
	return persistence.VerifyPoJChain()
}
