package workspace

import (
	"encoding/json"
	"os"

	"github.com/rasenhq/rasen/internal/atomicstore"
	"github.com/rasenhq/rasen/internal/rasenerr"
)

// ActiveWorktree records the isolated git worktree a run is using, so a
// later `rasen merge` invocation can find and merge it.
type ActiveWorktree struct {
	Path   string `json:"path"`
	Branch string `json:"branch"`
}

// SaveActiveWorktree records w at layout's worktree path.
func SaveActiveWorktree(layout Layout, w ActiveWorktree) error {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return rasenerr.Store("encode active worktree record: %w", err)
	}
	if err := atomicstore.WriteLocked(layout.WorktreePath(), data); err != nil {
		return rasenerr.Store("write active worktree record: %w", err)
	}
	return nil
}

// LoadActiveWorktree reads back the record saved by SaveActiveWorktree.
// Returns the zero value, not an error, if none has been recorded.
func LoadActiveWorktree(layout Layout) (ActiveWorktree, error) {
	data, err := atomicstore.ReadLocked(layout.WorktreePath())
	if os.IsNotExist(err) {
		return ActiveWorktree{}, nil
	}
	if err != nil {
		return ActiveWorktree{}, rasenerr.Store("read active worktree record: %w", err)
	}
	var w ActiveWorktree
	if err := json.Unmarshal(data, &w); err != nil {
		return ActiveWorktree{}, rasenerr.Store("decode active worktree record: %w", err)
	}
	return w, nil
}

// ClearActiveWorktree removes the active worktree record after a
// successful merge.
func ClearActiveWorktree(layout Layout) error {
	if err := os.Remove(layout.WorktreePath()); err != nil && !os.IsNotExist(err) {
		return rasenerr.Store("remove active worktree record: %w", err)
	}
	return nil
}
