package relational

import (
	"database/sql"

	"github.com/synapsevault/memoryengine/internal/memerr"
)

// GetCoreMemoryBlock fetches a block by (block_type, block_key), or nil if
// absent.
func (d *Database) GetCoreMemoryBlock(blockType, blockKey string) (*CoreMemoryBlock, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var b CoreMemoryBlock
	var updatedAt string
	err := d.db.QueryRow(`
		SELECT id, block_type, block_key, content, updated_at
		FROM core_memory_blocks WHERE block_type = ? AND block_key = ?
	`, blockType, blockKey).Scan(&b.ID, &b.BlockType, &b.BlockKey, &b.Content, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, memerr.StorageErr("GetCoreMemoryBlock", err)
	}
	if t, err := parseTime(updatedAt); err == nil {
		b.UpdatedAt = t
	}
	return &b, nil
}

// UpsertCoreMemoryBlock writes b, replacing any existing row for the same
// (block_type, block_key).
func (d *Database) UpsertCoreMemoryBlock(b *CoreMemoryBlock) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`
		INSERT INTO core_memory_blocks (id, block_type, block_key, content, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(block_type, block_key) DO UPDATE SET
			content = excluded.content,
			updated_at = excluded.updated_at
	`, b.ID, b.BlockType, b.BlockKey, b.Content, formatTime(b.UpdatedAt))
	if err != nil {
		return memerr.StorageErr("UpsertCoreMemoryBlock", err)
	}
	return nil
}

// DeleteCoreMemoryBlock removes the block for (block_type, block_key), if
// present.
func (d *Database) DeleteCoreMemoryBlock(blockType, blockKey string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`DELETE FROM core_memory_blocks WHERE block_type = ? AND block_key = ?`, blockType, blockKey)
	if err != nil {
		return memerr.StorageErr("DeleteCoreMemoryBlock", err)
	}
	return nil
}

// ListCoreMemoryBlocks returns every core memory block, used by recall's
// include_core path.
func (d *Database) ListCoreMemoryBlocks() ([]*CoreMemoryBlock, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`SELECT id, block_type, block_key, content, updated_at FROM core_memory_blocks`)
	if err != nil {
		return nil, memerr.StorageErr("ListCoreMemoryBlocks", err)
	}
	defer rows.Close()

	var blocks []*CoreMemoryBlock
	for rows.Next() {
		var b CoreMemoryBlock
		var updatedAt string
		if err := rows.Scan(&b.ID, &b.BlockType, &b.BlockKey, &b.Content, &updatedAt); err != nil {
			return nil, memerr.StorageErr("ListCoreMemoryBlocks", err)
		}
		if t, err := parseTime(updatedAt); err == nil {
			b.UpdatedAt = t
		}
		blocks = append(blocks, &b)
	}
	return blocks, nil
}
