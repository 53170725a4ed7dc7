package calendar

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// FieldChange summarises an edit to a free-text event field.
type FieldChange struct {
	Patch        string `json:"patch,omitempty"`
	AddedChars   int    `json:"added_chars"`
	DeletedChars int    `json:"deleted_chars"`
}

// Empty reports whether nothing changed.
func (c FieldChange) Empty() bool {
	return c.AddedChars == 0 && c.DeletedChars == 0
}

// DiffText computes a patch from before to after.
func DiffText(before, after string) FieldChange {
	if before == after {
		return FieldChange{}
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, false))

	var change FieldChange
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			change.AddedChars += len([]rune(d.Text))
		case diffmatchpatch.DiffDelete:
			change.DeletedChars += len([]rune(d.Text))
		}
	}
	change.Patch = strings.TrimSpace(dmp.PatchToText(dmp.PatchMake(before, diffs)))
	return change
}
