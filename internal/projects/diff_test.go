package projects

import (
	"testing"

	"github.com/lmarchetti/taskhive-notifier/pkg/docstore/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func file(name, url string) models.ProjectFile {
	return models.ProjectFile{FileName: name, FileURL: url}
}

func TestNewlyAddedFile(t *testing.T) {
	tests := []struct {
		name     string
		before   []models.ProjectFile
		after    []models.ProjectFile
		wantFile string
		wantOK   bool
	}{
		{
			name:     "single addition",
			before:   []models.ProjectFile{file("a.pdf", "a")},
			after:    []models.ProjectFile{file("a.pdf", "a"), file("doc.pdf", "b")},
			wantFile: "doc.pdf",
			wantOK:   true,
		},
		{
			name:   "no growth means no addition",
			before: []models.ProjectFile{file("a.pdf", "a")},
			after:  []models.ProjectFile{file("b.pdf", "b")},
			wantOK: false,
		},
		{
			name:   "removal",
			before: []models.ProjectFile{file("a.pdf", "a"), file("b.pdf", "b")},
			after:  []models.ProjectFile{file("a.pdf", "a")},
			wantOK: false,
		},
		{
			name:     "first novel entry wins on multiple additions",
			before:   []models.ProjectFile{file("a.pdf", "a")},
			after:    []models.ProjectFile{file("a.pdf", "a"), file("x.pdf", "x"), file("y.pdf", "y")},
			wantFile: "x.pdf",
			wantOK:   true,
		},
		{
			name:   "empty lists",
			before: nil,
			after:  nil,
			wantOK: false,
		},
		{
			name:     "growth from empty",
			before:   nil,
			after:    []models.ProjectFile{file("first.pdf", "u1")},
			wantFile: "first.pdf",
			wantOK:   true,
		},
		{
			name:   "longer list with no new url",
			before: []models.ProjectFile{file("a.pdf", "a")},
			after:  []models.ProjectFile{file("a.pdf", "a"), file("copy.pdf", "a")},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := newlyAddedFile(tt.before, tt.after)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantFile, got.FileName)
			}
		})
	}
}

func TestChangedFieldsExcludesBookkeepingKeys(t *testing.T) {
	before := map[string]any{
		"title":       "Old",
		"files":       []any{},
		"lastUpdates": []any{"x"},
		"updatedAt":   "2026-01-01",
	}
	after := map[string]any{
		"title":       "New",
		"files":       []any{map[string]any{"fileUrl": "b"}},
		"lastUpdates": []any{"y"},
		"updatedAt":   "2026-02-01",
	}

	changed := changedFields(before, after)
	assert.Equal(t, []string{"title"}, changed)
}

func TestChangedFieldsSortedAndComplete(t *testing.T) {
	before := map[string]any{"title": "Atlas", "status": "open", "color": "red"}
	after := map[string]any{"title": "Atlas", "status": "closed", "color": "blue", "owner": "u9"}

	changed := changedFields(before, after)
	assert.Equal(t, []string{"color", "owner", "status"}, changed)
}

func TestStructuralEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"identical scalars", "x", "x", true},
		{"different scalars", float64(1), float64(2), false},
		{"nil both sides", nil, nil, true},
		{"nil vs value", nil, "x", false},
		{"equal nested maps", map[string]any{"a": []any{float64(1), "b"}}, map[string]any{"a": []any{float64(1), "b"}}, true},
		{"sequence reorder counts as change", []any{"a", "b"}, []any{"b", "a"}, false},
		{"missing key", map[string]any{"a": "1"}, map[string]any{}, false},
		{"type mismatch", []any{"a"}, map[string]any{"0": "a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, structuralEqual(tt.a, tt.b))
		})
	}
}

func TestClassifyUpdatePriorities(t *testing.T) {
	// Invite noise wins even when a file was also added in the same write.
	before := map[string]any{
		"pending_requests": []any{},
		"files":            []any{},
	}
	after := map[string]any{
		"pending_requests": []any{map[string]any{"email": "a@x.com"}},
		"files":            []any{map[string]any{"fileName": "doc.pdf", "fileUrl": "b"}},
	}
	require.Equal(t, updateInviteNoise, classifyUpdate(before, after).kind)

	// File addition wins over other changed fields.
	before = map[string]any{"title": "Old", "files": []any{}}
	after = map[string]any{"title": "New", "files": []any{map[string]any{"fileName": "doc.pdf", "fileUrl": "b"}}}
	result := classifyUpdate(before, after)
	require.Equal(t, updateFileAdded, result.kind)
	assert.Equal(t, "doc.pdf", result.newFile.FileName)

	// Unchanged documents are a no-op.
	same := map[string]any{"title": "Atlas"}
	require.Equal(t, updateNoOp, classifyUpdate(same, map[string]any{"title": "Atlas"}).kind)
}

func TestChangeSummary(t *testing.T) {
	assert.Equal(t, "title", changeSummary([]string{"title"}))
	assert.Equal(t, "color, status, title", changeSummary([]string{"color", "status", "title"}))
	assert.Equal(t, "4 fields updated", changeSummary([]string{"a", "b", "c", "d"}))
}
