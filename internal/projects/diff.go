package projects

import (
	"sort"

	"github.com/lmarchetti/taskhive-notifier/pkg/docstore/models"
)

// updateKind classifies a project update into exactly one action.
type updateKind int

const (
	updateNoOp updateKind = iota
	updateInviteNoise
	updateFileAdded
	updateFieldsChanged
)

// Fields that change on every write and never warrant a notification of
// their own.
var ignoredFields = map[string]bool{
	"files":       true,
	"lastUpdates": true,
	"updatedAt":   true,
}

const pendingRequestsField = "pending_requests"

type classification struct {
	kind    updateKind
	newFile models.ProjectFile
	changed []string
}

// classifyUpdate routes a before/after snapshot pair to one action. Order
// matters: invite-driven writes are filtered first so InviteNotifier stays
// the only source of invite notifications, then file additions, then any
// other field change.
func classifyUpdate(before, after map[string]any) classification {
	if !structuralEqual(before[pendingRequestsField], after[pendingRequestsField]) {
		return classification{kind: updateInviteNoise}
	}

	if newFile, ok := newlyAddedFile(fileList(before), fileList(after)); ok {
		return classification{kind: updateFileAdded, newFile: newFile}
	}

	if changed := changedFields(before, after); len(changed) > 0 {
		return classification{kind: updateFieldsChanged, changed: changed}
	}

	return classification{kind: updateNoOp}
}

// newlyAddedFile reports the first entry of after whose URL appears nowhere
// in before, provided the list actually grew. Multiple simultaneous additions
// are not distinguished beyond the first.
func newlyAddedFile(before, after []models.ProjectFile) (models.ProjectFile, bool) {
	if len(after) <= len(before) {
		return models.ProjectFile{}, false
	}
	known := make(map[string]bool, len(before))
	for _, file := range before {
		known[file.FileURL] = true
	}
	for _, file := range after {
		if !known[file.FileURL] {
			return file, true
		}
	}
	return models.ProjectFile{}, false
}

// changedFields returns every top-level key of after whose value differs
// structurally from before, excluding the ignored bookkeeping fields. The
// result is sorted for stable summaries.
func changedFields(before, after map[string]any) []string {
	changed := []string{}
	for key, afterValue := range after {
		if ignoredFields[key] || key == pendingRequestsField {
			continue
		}
		if !structuralEqual(before[key], afterValue) {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed
}

// structuralEqual compares two JSON-decoded values recursively. Maps compare
// key-wise, sequences compare order-sensitively: reordering the elements of a
// nested list counts as a change.
func structuralEqual(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for key, value := range av {
			other, present := bv[key]
			if !present || !structuralEqual(value, other) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !structuralEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func fileList(fields map[string]any) []models.ProjectFile {
	raw, ok := fields["files"].([]any)
	if !ok {
		return nil
	}
	files := make([]models.ProjectFile, 0, len(raw))
	for _, entry := range raw {
		item, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		file := models.ProjectFile{}
		if name, ok := item["fileName"].(string); ok {
			file.FileName = name
		}
		if url, ok := item["fileUrl"].(string); ok {
			file.FileURL = url
		}
		files = append(files, file)
	}
	return files
}
