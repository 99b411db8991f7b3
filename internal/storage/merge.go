package storage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Merge unions incoming into existing and returns a new table.
//
// Incoming columns are aligned to the existing header; columns only present
// in incoming are appended. Duplicates are dropped by keyColumns (full row
// when empty) and the row already stored wins. When sortColumn is set the
// result is stable-sorted on it, most recent first.
func Merge(existing, incoming *Table, keyColumns []string, sortColumn string) (*Table, error) {
	if existing == nil {
		existing = &Table{}
	}
	if incoming == nil {
		incoming = &Table{}
	}

	header := append([]string(nil), existing.Header...)
	if len(header) == 0 {
		header = append(header, incoming.Header...)
	} else {
		for _, h := range incoming.Header {
			if indexOf(header, h) < 0 {
				header = append(header, h)
			}
		}
	}
	out := NewTable(header...)

	keyIdx := make([]int, 0, len(keyColumns))
	for _, k := range keyColumns {
		i := indexOf(header, k)
		if i < 0 {
			return nil, fmt.Errorf("key column %q not in header", k)
		}
		keyIdx = append(keyIdx, i)
	}
	sortIdx := -1
	if sortColumn != "" {
		if sortIdx = indexOf(header, sortColumn); sortIdx < 0 {
			return nil, fmt.Errorf("sort column %q not in header", sortColumn)
		}
	}

	seen := make(map[string]struct{}, existing.Len()+incoming.Len())
	add := func(src *Table) {
		pos := make([]int, len(header))
		for i, h := range header {
			pos[i] = src.Index(h)
		}
		for _, r := range src.Rows {
			row := make([]string, len(header))
			for i, p := range pos {
				if p >= 0 {
					row[i] = r[p]
				}
			}
			key := rowKey(row, keyIdx)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out.Rows = append(out.Rows, row)
		}
	}
	add(existing)
	add(incoming)

	if sortIdx >= 0 {
		sort.SliceStable(out.Rows, func(i, j int) bool {
			return descending(out.Rows[i][sortIdx], out.Rows[j][sortIdx])
		})
	}
	return out, nil
}

// MergeAndPersist merges incoming into existing and saves the result to path.
func MergeAndPersist(path string, existing, incoming *Table, keyColumns []string, sortColumn string) (*Table, error) {
	merged, err := Merge(existing, incoming, keyColumns, sortColumn)
	if err != nil {
		return nil, err
	}
	if err := Save(path, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

func rowKey(row []string, keyIdx []int) string {
	if len(keyIdx) == 0 {
		return strings.Join(row, "\x00")
	}
	parts := make([]string, len(keyIdx))
	for i, k := range keyIdx {
		parts[i] = row[k]
	}
	return strings.Join(parts, "\x00")
}

// descending reports whether a sorts before b in most-recent-first order.
// Timestamps compare as instants, numbers numerically, anything else as text.
func descending(a, b string) bool {
	if ta, err := time.Parse(time.RFC3339Nano, a); err == nil {
		if tb, err := time.Parse(time.RFC3339Nano, b); err == nil {
			return ta.After(tb)
		}
	}
	if fa, err := strconv.ParseFloat(a, 64); err == nil {
		if fb, err := strconv.ParseFloat(b, 64); err == nil {
			return fa > fb
		}
	}
	return a > b
}

// Checkpointer accumulates rows and merges them into a file every N rows,
// so a crash loses at most the unflushed batch.
type Checkpointer struct {
	path       string
	header     []string
	keyColumns []string
	sortColumn string
	every      int
	logger     zerolog.Logger

	stored  *Table
	pending [][]string
	flushes int
}

// NewCheckpointer returns a Checkpointer writing to path on top of stored.
// Rows passed to Add must follow header.
func NewCheckpointer(path string, stored *Table, header, keyColumns []string, sortColumn string, every int, logger zerolog.Logger) *Checkpointer {
	if every < 1 {
		every = 1
	}
	return &Checkpointer{
		path:       path,
		header:     header,
		keyColumns: keyColumns,
		sortColumn: sortColumn,
		every:      every,
		logger:     logger,
		stored:     stored,
	}
}

// Add queues row and flushes once every rows are pending.
func (c *Checkpointer) Add(row []string) error {
	c.pending = append(c.pending, row)
	if len(c.pending) >= c.every {
		return c.Flush()
	}
	return nil
}

// Flush persists pending rows. It is a no-op when nothing is pending.
func (c *Checkpointer) Flush() error {
	if len(c.pending) == 0 {
		return nil
	}
	batch := &Table{Header: c.header, Rows: c.pending}
	merged, err := MergeAndPersist(c.path, c.stored, batch, c.keyColumns, c.sortColumn)
	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", c.path, err)
	}
	c.logger.Info().Str("path", c.path).Int("rows", len(c.pending)).Int("total", merged.Len()).Msg("checkpoint")
	c.stored = merged
	c.pending = nil
	c.flushes++
	return nil
}

// Stored returns the table as last persisted.
func (c *Checkpointer) Stored() *Table { return c.stored }

// Pending returns the number of rows not yet persisted.
func (c *Checkpointer) Pending() int { return len(c.pending) }

// Flushes returns how many times the file has been written.
func (c *Checkpointer) Flushes() int { return c.flushes }
