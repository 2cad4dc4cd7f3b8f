package document

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Report describes what the corrector changed.
type Report struct {
	Repairs []string `json:"repairs,omitempty"`
	Dropped []string `json:"dropped,omitempty"`
	Diff    string   `json:"diff,omitempty"`
}

func (r *Report) add(format string, args ...any) {
	r.Repairs = append(r.Repairs, fmt.Sprintf(format, args...))
}

func (r *Report) drop(key string) {
	r.Dropped = append(r.Dropped, key)
}

// Changed reports whether any structural repair or key removal happened.
func (r Report) Changed() bool {
	return len(r.Repairs) > 0 || len(r.Dropped) > 0
}

// Summary renders repairs and dropped keys as feedback lines.
func (r Report) Summary() string {
	var b strings.Builder
	for _, s := range r.Repairs {
		b.WriteString("repaired: ")
		b.WriteString(s)
		b.WriteByte('\n')
	}
	for _, s := range r.Dropped {
		b.WriteString("dropped: ")
		b.WriteString(s)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// lineDiff returns a unified-style line diff of before and after, or "" when
// they are identical.
func lineDiff(before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out strings.Builder
	for _, d := range diffs {
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		default:
			continue
		}
		for _, l := range strings.SplitAfter(d.Text, "\n") {
			if l == "" {
				continue
			}
			out.WriteString(prefix)
			out.WriteString(strings.TrimRight(l, "\n"))
			out.WriteByte('\n')
		}
	}
	return out.String()
}
