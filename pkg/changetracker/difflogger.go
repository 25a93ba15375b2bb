package changetracker

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	redColor   = "\x1b[31m"
	greenColor = "\x1b[32m"
	resetColor = "\x1b[0m"
)

// GetDiff returns a colored line diff between original and updated content.
func GetDiff(filename, original, updated string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(original, updated)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("--- %s\n+++ %s\n", filename, filename))
	for _, d := range diffs {
		for _, line := range splitKeepNonEmpty(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffDelete:
				sb.WriteString(redColor + "-" + line + resetColor + "\n")
			case diffmatchpatch.DiffInsert:
				sb.WriteString(greenColor + "+" + line + resetColor + "\n")
			default:
				sb.WriteString(" " + line + "\n")
			}
		}
	}
	return sb.String()
}

// DiffForChange renders a ledger entry as a diff against its previous state.
func DiffForChange(change FileChange) string {
	var old, updated string
	if change.OldContent != nil {
		old = *change.OldContent
	}
	if change.NewContent != nil {
		updated = *change.NewContent
	}
	return GetDiff(change.Path, old, updated)
}

func splitKeepNonEmpty(text string) []string {
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	return lines
}
