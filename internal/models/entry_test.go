package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntryStatus(t *testing.T) {
	tests := []struct {
		raw    string
		want   EntryStatus
		wantOK bool
	}{
		{"", "", true},
		{"pending", StatusPending, true},
		{" Active ", StatusActive, true},
		{"closed", "closed", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseEntryStatus(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestDeletedEntryJSONFields(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	deleted := created.Add(time.Hour)

	snap := NewDeletedEntry(Entry{ID: 1, Name: "Alice", Text: "printer jam", Status: StatusPending, CreatedAt: created}, deleted)

	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))

	assert.Equal(t, float64(1), fields["id"])
	assert.Equal(t, "Alice", fields["name"])
	assert.Equal(t, "pending", fields["status"])
	assert.Contains(t, fields, "date_created")
	assert.Contains(t, fields, "date_deleted")
}
