package sync

import (
	"fmt"

	"github.com/dcvt/mindex/translog"
	"github.com/dcvt/mindex/view"
)

// View returns a view of the index anchored at this Ctx's current log
// position, with a Transaction that appends new records through this
// Ctx's log writer. Records committed through it are written to the log
// but not applied to this Ctx's index; Commit leaves the recorded tail
// offset before them, so the next Begin replays and applies them.
func (c *Ctx) View() (*view.View, error) {
	w, err := translog.NewWriter(c.Log)
	if err != nil {
		return nil, fmt.Errorf("sync: view: %w", err)
	}

	h := c.Index.GetHeader()

	return view.Open(c.Index, w, h.LogFileSeq, int64(h.LogFileTailOffset)), nil
}
