package notify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryLog_NewestFirst(t *testing.T) {
	h := NewHistoryLog()

	h.Append("first")
	h.Append("second")
	h.Append("third")

	entries := h.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "third", entries[0].Text)
	assert.Equal(t, "second", entries[1].Text)
	assert.Equal(t, "first", entries[2].Text)
}

func TestHistoryLog_TruncatesToCapacity(t *testing.T) {
	h := NewHistoryLog()

	for i := 1; i <= 11; i++ {
		h.Append(fmt.Sprintf("entry %d", i))
	}

	entries := h.Entries()
	require.Len(t, entries, HistoryCapacity)
	assert.Equal(t, "entry 11", entries[0].Text)
	assert.Equal(t, "entry 2", entries[HistoryCapacity-1].Text)
}

func TestHistoryLog_EntriesReturnsCopy(t *testing.T) {
	h := NewHistoryLog()
	h.Append("only")

	entries := h.Entries()
	entries[0].Text = "mutated"

	assert.Equal(t, "only", h.Entries()[0].Text)
}
