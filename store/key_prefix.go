package store

// Declare database key prefix for objects
const (
	PrefixBlock     = "poj_blk:"
	PrefixBlockHash = "poj_blk_hash:"
	PrefixMeta      = "poj_meta:"

	MetaKeyLatestSlot = "latest_slot"
)
