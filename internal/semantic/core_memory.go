// Package semantic implements the Semantic Memory component: mutable
// core memory blocks, entity upsert with observation-merge semantics,
// bi-temporal relation creation, and a distance-only knowledge search.
package semantic

import (
	"time"

	"github.com/synapsevault/memoryengine/internal/ids"
	"github.com/synapsevault/memoryengine/internal/relational"
)

// UpdateMode selects how new content is applied to a core memory block.
type UpdateMode string

const (
	ModeAppend  UpdateMode = "append"
	ModeReplace UpdateMode = "replace"
	ModeRemove  UpdateMode = "remove"
)

// UpdateCoreMemory applies mode to the block identified by
// (blockType, blockKey). Append concatenates onto existing content,
// Replace overwrites it, and Remove deletes the block entirely. The
// combined content is truncated to its leading CoreMemoryMaxChars
// characters; the truncation keeps the beginning, not the end.
func (s *Store) UpdateCoreMemory(blockType relational.BlockType, blockKey, content string, mode UpdateMode) (*relational.CoreMemoryBlock, error) {
	existing, err := s.db.GetCoreMemoryBlock(string(blockType), blockKey)
	if err != nil {
		return nil, err
	}

	if mode == ModeRemove {
		if err := s.db.DeleteCoreMemoryBlock(string(blockType), blockKey); err != nil {
			return nil, err
		}
		return &relational.CoreMemoryBlock{BlockType: blockType, BlockKey: blockKey, Content: ""}, nil
	}

	var newContent string
	switch mode {
	case ModeAppend:
		if existing != nil {
			newContent = existing.Content + "\n" + content
		} else {
			newContent = content
		}
	case ModeReplace:
		newContent = content
	default:
		newContent = content
	}
	newContent = truncateLeading(newContent, relational.CoreMemoryMaxChars)

	block := &relational.CoreMemoryBlock{
		BlockType: blockType,
		BlockKey:  blockKey,
		Content:   newContent,
		UpdatedAt: time.Now(),
	}
	if existing != nil {
		block.ID = existing.ID
	} else {
		block.ID = ids.New()
	}

	if err := s.db.UpsertCoreMemoryBlock(block); err != nil {
		return nil, err
	}
	return block, nil
}

// GetCoreMemory returns the block for (blockType, blockKey), or nil if
// it does not exist.
func (s *Store) GetCoreMemory(blockType relational.BlockType, blockKey string) (*relational.CoreMemoryBlock, error) {
	return s.db.GetCoreMemoryBlock(string(blockType), blockKey)
}

// ListCoreMemory returns every core memory block.
func (s *Store) ListCoreMemory() ([]*relational.CoreMemoryBlock, error) {
	return s.db.ListCoreMemoryBlocks()
}

func truncateLeading(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
