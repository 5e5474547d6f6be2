package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWindow = 30 * time.Millisecond

func collectBatch(t *testing.T, d *Debouncer, timeout time.Duration) []Event {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(timeout):
		t.Fatal("timed out waiting for debounced batch")
		return nil
	}
}

func TestDebouncer_CoalescesSaveBurst(t *testing.T) {
	// Given a typical editor save burst
	d := NewDebouncer(testWindow)
	defer d.Stop()

	d.Add(Event{Path: "notes/a.md", Op: OpCreate})
	d.Add(Event{Path: "notes/a.md", Op: OpModify})
	d.Add(Event{Path: "notes/a.md", Op: OpModify})

	// When the quiet window elapses
	batch := collectBatch(t, d, time.Second)

	// Then one CREATE remains
	require.Len(t, batch, 1)
	assert.Equal(t, "notes/a.md", batch[0].Path)
	assert.Equal(t, OpCreate, batch[0].Op)
}

func TestDebouncer_SeparatePathsStayDistinct(t *testing.T) {
	d := NewDebouncer(testWindow)
	defer d.Stop()

	d.Add(Event{Path: "a.md", Op: OpModify})
	d.Add(Event{Path: "b.md", Op: OpModify})

	batch := collectBatch(t, d, time.Second)

	assert.Len(t, batch, 2)
}

func TestDebouncer_CreateDeleteCancels(t *testing.T) {
	// Given a file created and deleted inside one window
	d := NewDebouncer(testWindow)
	defer d.Stop()

	d.Add(Event{Path: "tmp.md", Op: OpCreate})
	d.Add(Event{Path: "tmp.md", Op: OpDelete})

	// Then no batch is emitted
	select {
	case batch := <-d.Output():
		t.Fatalf("expected no batch, got %v", batch)
	case <-time.After(3 * testWindow):
	}
}

func TestDebouncer_EachAddRestartsWindow(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(Event{Path: "a.md", Op: OpModify})
	time.Sleep(30 * time.Millisecond)
	d.Add(Event{Path: "a.md", Op: OpModify})

	// 60ms after the first add the window restarted, so nothing yet
	select {
	case <-d.Output():
		t.Fatal("batch emitted before quiet window elapsed")
	case <-time.After(30 * time.Millisecond):
	}

	batch := collectBatch(t, d, time.Second)
	assert.Len(t, batch, 1)
}

func TestDebouncer_StopClosesOutput(t *testing.T) {
	d := NewDebouncer(testWindow)

	d.Stop()
	d.Stop()

	_, ok := <-d.Output()
	assert.False(t, ok)
}

func TestDebouncer_AddAfterStopIgnored(t *testing.T) {
	d := NewDebouncer(testWindow)
	d.Stop()

	d.Add(Event{Path: "a.md", Op: OpModify})
}

func TestResolveOp(t *testing.T) {
	tests := []struct {
		name   string
		first  Op
		last   Op
		want   Op
		wantOK bool
	}{
		{"create then modify", OpCreate, OpModify, OpCreate, true},
		{"create then delete", OpCreate, OpDelete, 0, false},
		{"create alone", OpCreate, OpCreate, OpCreate, true},
		{"modify then delete", OpModify, OpDelete, OpDelete, true},
		{"modify then modify", OpModify, OpModify, OpModify, true},
		{"delete then create", OpDelete, OpCreate, OpModify, true},
		{"delete alone", OpDelete, OpDelete, OpDelete, true},
		{"rename then modify", OpRename, OpModify, OpModify, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, ok := resolveOp(tt.first, tt.last)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, op)
			}
		})
	}
}

func TestOp_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "MODIFY", OpModify.String())
	assert.Equal(t, "DELETE", OpDelete.String())
	assert.Equal(t, "RENAME", OpRename.String())
	assert.Equal(t, "CONFIG_CHANGE", OpConfigChange.String())
	assert.Equal(t, "UNKNOWN", Op(99).String())
}
