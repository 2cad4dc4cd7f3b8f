package document

import (
	"regexp"
	"strings"
)

// IndentUnit is the indentation step of every corrected document.
const IndentUnit = 2

// line is one physical line of the document. text has its indentation removed;
// scalar lines belong to a block scalar body and are never interpreted.
type line struct {
	indent int
	text   string
	scalar bool
}

func (l line) blank() bool { return l.text == "" }

var (
	keyRe         = regexp.MustCompile(`^("[^"]*"|'[^']*'|[^\s'"#\-\[\{|>!&*][^#]*?)\s*:(\s|$)`)
	blockHeaderRe = regexp.MustCompile(`(^|:\s|^-\s)\s*[|>][0-9+-]*$`)
	dashRe        = regexp.MustCompile(`^-\s+`)
	propertyRe    = regexp.MustCompile(`:\s+[&!]\S*$`)
)

// splitLines normalizes line endings, drops surrounding code fences and
// trailing whitespace, expands leading tabs, and returns the line-indexed form
// with full-line comments removed and a common leading indent stripped.
func splitLines(raw string) []line {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	parts := stripFences(strings.Split(raw, "\n"))

	out := make([]line, 0, len(parts))
	scalarParent := -1 // indent of the current block scalar header
	for _, p := range parts {
		p = strings.TrimRight(p, " \t")
		indent, text := measure(p)
		if text == "" {
			out = append(out, line{scalar: scalarParent >= 0})
			continue
		}
		if scalarParent >= 0 {
			if indent > scalarParent {
				out = append(out, line{indent: indent, text: text, scalar: true})
				continue
			}
			scalarParent = -1
		}
		if strings.HasPrefix(text, "#") {
			continue
		}
		text = normalizeDashes(text)
		out = append(out, line{indent: indent, text: text})
		if opensBlockScalar(text) {
			scalarParent = indent
		}
	}
	out = trimBlank(out)
	dedent(out)
	return out
}

func stripFences(parts []string) []string {
	first, last := -1, -1
	for i, p := range parts {
		if strings.TrimSpace(p) != "" {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 || !strings.HasPrefix(strings.TrimSpace(parts[first]), "```") {
		return parts
	}
	if last > first && strings.TrimSpace(parts[last]) == "```" {
		return parts[first+1 : last]
	}
	return parts[first+1:]
}

func measure(s string) (int, string) {
	n := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ':
			n++
		case '\t':
			n += IndentUnit
		default:
			return n, s[i:]
		}
	}
	return 0, ""
}

// normalizeDashes collapses "-   key: v" to "- key: v" so that continuation
// lines line up with the key after re-indentation.
func normalizeDashes(text string) string {
	var b strings.Builder
	for {
		loc := dashRe.FindStringIndex(text)
		if loc == nil {
			break
		}
		b.WriteString("- ")
		text = text[loc[1]:]
	}
	b.WriteString(text)
	return b.String()
}

func trimBlank(lines []line) []line {
	for len(lines) > 0 && lines[0].blank() {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1].blank() {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func dedent(lines []line) {
	min := -1
	for _, l := range lines {
		if l.blank() || l.scalar {
			continue
		}
		if min < 0 || l.indent < min {
			min = l.indent
		}
	}
	if min <= 0 {
		return
	}
	for i := range lines {
		if !lines[i].blank() {
			lines[i].indent -= min
		}
	}
}

// stripComment removes a trailing " # comment" that is not inside quotes.
func stripComment(text string) string {
	var quote byte
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '#' && i > 0 && (text[i-1] == ' ' || text[i-1] == '\t'):
			return strings.TrimRight(text[:i], " \t")
		}
	}
	return text
}

func opensBlockScalar(text string) bool {
	return blockHeaderRe.MatchString(stripComment(text))
}

// keyOf returns the mapping key on a line and the remainder after the colon.
// List items return ok=false.
func keyOf(text string) (key, value string, ok bool) {
	if strings.HasPrefix(text, "- ") || text == "-" {
		return "", "", false
	}
	m := keyRe.FindStringSubmatchIndex(text)
	if m == nil {
		return "", "", false
	}
	key = strings.Trim(text[m[2]:m[3]], `"'`)
	value = strings.TrimSpace(stripComment(text[m[1]:]))
	return strings.TrimSpace(key), value, true
}

// isKeyLine reports whether a line starts a mapping entry, looking through any
// list item dashes.
func isKeyLine(text string) bool {
	for strings.HasPrefix(text, "- ") {
		text = text[2:]
	}
	_, _, ok := keyOf(text)
	return ok
}

// opensChildren reports whether deeper lines following this one can be its
// children: mapping headers and list items.
func opensChildren(text string) bool {
	t := stripComment(text)
	return strings.HasSuffix(t, ":") || strings.HasPrefix(t, "- ") || t == "-" || propertyRe.MatchString(t)
}

func dashPrefix(text string) int {
	n := 0
	for strings.HasPrefix(text[n:], "- ") {
		n += 2
	}
	return n
}

// subtreeEnd returns the index one past the last line belonging to the block
// opened at lines[start].
func subtreeEnd(lines []line, start int) int {
	head := lines[start].indent
	end := start + 1
	last := start + 1
	for end < len(lines) {
		l := lines[end]
		if !l.blank() && !l.scalar && l.indent <= head {
			break
		}
		end++
		if !l.blank() {
			last = end
		}
	}
	return last
}

type extraction struct {
	key   string
	depth int
	lines []line
}

// extractMisplaced is the first correction pass. It finds blocks that belong
// at the top level (presentation, locale, settings) but were emitted inside
// the content block, removes them, and returns them de-indented. A block that
// already exists at the top level wins over a nested copy.
func extractMisplaced(lines []line, contentKey string, relocatable map[string]bool) ([]line, []extraction, []string) {
	start, end := -1, len(lines)
	topLevel := map[string]bool{}
	for i, l := range lines {
		if l.blank() || l.scalar || l.indent != 0 {
			continue
		}
		k, _, ok := keyOf(l.text)
		if !ok {
			continue
		}
		topLevel[k] = true
		if k == contentKey && start < 0 {
			start = i
		} else if start >= 0 && end == len(lines) {
			end = i
		}
	}
	if start < 0 {
		return lines, nil, nil
	}

	var (
		found   []extraction
		dropped []string
		kept    = make([]line, 0, len(lines))
		seen    = map[string]bool{}
	)
	kept = append(kept, lines[:start+1]...)
	i := start + 1
	for i < end {
		l := lines[i]
		if l.blank() || l.scalar || l.indent == 0 {
			kept = append(kept, l)
			i++
			continue
		}
		k, v, ok := keyOf(l.text)
		if !ok || !relocatable[k] {
			kept = append(kept, l)
			i++
			continue
		}
		stop := i + 1
		switch {
		case v == "":
			stop = subtreeEnd(lines, i)
			if stop > end {
				stop = end
			}
			if !mappingChildren(lines[i+1 : stop]) {
				kept = append(kept, l)
				i++
				continue
			}
		case strings.HasPrefix(v, "{"):
		default:
			kept = append(kept, l)
			i++
			continue
		}
		block := make([]line, 0, stop-i)
		for _, b := range lines[i:stop] {
			if !b.blank() {
				b.indent -= l.indent
			}
			block = append(block, b)
		}
		if topLevel[k] || seen[k] {
			dropped = append(dropped, k)
		} else {
			seen[k] = true
			found = append(found, extraction{key: k, depth: l.indent, lines: trimBlank(block)})
		}
		i = stop
	}
	kept = append(kept, lines[end:]...)
	for _, f := range found {
		kept = append(kept, line{})
		kept = append(kept, f.lines...)
	}
	return kept, found, dropped
}

func mappingChildren(children []line) bool {
	for _, c := range children {
		if c.blank() {
			continue
		}
		return !strings.HasPrefix(c.text, "- ") && isKeyLine(c.text)
	}
	return false
}

type frame struct {
	orig  int
	level int
	opens bool
}

// reindent is the second correction pass. Every structural line is placed at
// a multiple of IndentUnit derived from the nesting of its original indent.
// Block scalar bodies keep their indentation relative to the first body line.
func reindent(lines []line) string {
	var (
		b          strings.Builder
		stack      []frame
		scalarBase = -1
		scalarAt   int
	)
	for idx, l := range lines {
		if idx > 0 {
			b.WriteByte('\n')
		}
		if l.blank() {
			continue
		}
		if l.scalar {
			if scalarBase < 0 {
				scalarBase = l.indent
			}
			extra := l.indent - scalarBase
			if extra < 0 {
				extra = 0
			}
			b.WriteString(strings.Repeat(" ", scalarAt+extra))
			b.WriteString(l.text)
			continue
		}
		scalarBase = -1

		for len(stack) > 0 && stack[len(stack)-1].orig > l.indent {
			stack = stack[:len(stack)-1]
		}
		level := 0
		switch {
		case len(stack) == 0:
			stack = append(stack, frame{orig: l.indent})
		case stack[len(stack)-1].orig == l.indent:
			level = stack[len(stack)-1].level
		case !stack[len(stack)-1].opens && isKeyLine(l.text):
			// an over-indented sibling of a scalar entry
			level = stack[len(stack)-1].level
		default:
			level = stack[len(stack)-1].level + 1
			stack = append(stack, frame{orig: l.indent, level: level})
		}
		stack[len(stack)-1].opens = opensChildren(l.text)

		indent := level * IndentUnit
		b.WriteString(strings.Repeat(" ", indent))
		b.WriteString(l.text)
		if opensBlockScalar(l.text) {
			scalarAt = indent + dashPrefix(l.text) + IndentUnit
		}
	}
	return b.String()
}
