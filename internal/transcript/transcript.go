// Package transcript implements the companion transcript tool's
// strict parsing and turn-minting primitives: the header grammar, the
// rightmost-fence content scan, the persisted monotonic turn counter,
// and the blockquote renderer GET/PUT/RUN/QUOTE share. Grounded on
// original_source's src/tools.py: headers must begin at start-of-line
// (headRe uses Go's (?m) multiline mode, matching HEAD_RE's Python
// re.MULTILINE), and a turn's content runs up to the LAST occurrence
// of Fence before the next header (or EOF) — not the first — so
// content that merely contains fence-like bytes doesn't get truncated
// early.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Fence is the 16-byte canonical closing sequence every complete turn
// ends with.
const Fence = "\n\n~~~(end)~~~\n\n"

var headRe = regexp.MustCompile(`(?m)^\(Turn\s+(\d+)\)\s*\[([^\]]+)\]:\s*`)

// Turn is one parsed transcript entry.
type Turn struct {
	ID      int
	Role    string
	Content string
}

// header is one parsed start-of-line turn header: its id, role, the
// byte offset where its own match starts, and the byte offset where
// its content begins (just past the header match, including any
// trailing whitespace the header consumed).
type header struct {
	id         int
	role       string
	matchStart int
	contentPos int
}

// headers returns every header match in text, in document order.
func headers(text string) []header {
	var out []header
	for _, m := range headRe.FindAllStringSubmatchIndex(text, -1) {
		id, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			continue
		}
		out = append(out, header{id: id, role: text[m[4]:m[5]], matchStart: m[0], contentPos: m[1]})
	}
	return out
}

// ParseTurns returns every turn in text whose fence is complete, in
// file order. A turn's content runs from just past its header to the
// LAST occurrence of Fence before the next header's own match starts
// (or EOF) — not the first — so content that merely contains
// fence-like bytes isn't truncated early. A turn with no such fence in
// its span — e.g. one still awaiting its forced trailer — is silently
// dropped, per spec.
func ParseTurns(text string) []Turn {
	hs := headers(text)
	var out []Turn
	for i, h := range hs {
		spanEnd := len(text)
		if i+1 < len(hs) {
			spanEnd = hs[i+1].matchStart
		}
		fencePos := strings.LastIndex(text[h.contentPos:spanEnd], Fence)
		if fencePos == -1 {
			continue
		}
		out = append(out, Turn{ID: h.id, Role: h.role, Content: text[h.contentPos : h.contentPos+fencePos]})
	}
	return out
}

// HighestTurn returns the greatest turn id appearing in any header in
// text, complete or not, or -1 if text has no turn headers at all.
func HighestTurn(text string) int {
	hi := -1
	for _, h := range headers(text) {
		if h.id > hi {
			hi = h.id
		}
	}
	return hi
}

// FindLastRole returns the highest-id turn whose role is in roles.
func FindLastRole(turns []Turn, roles ...string) (Turn, bool) {
	var best Turn
	found := false
	for _, t := range turns {
		if !containsRole(roles, t.Role) {
			continue
		}
		if !found || t.ID > best.ID {
			best = t
			found = true
		}
	}
	return best, found
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// FindByID returns the turn with the given id, if present.
func FindByID(turns []Turn, id int) (Turn, bool) {
	for _, t := range turns {
		if t.ID == id {
			return t, true
		}
	}
	return Turn{}, false
}

// QuoteBlock renders t as a Markdown-style blockquote.
func QuoteBlock(t Turn) string {
	lines := strings.Split(t.Content, "\n")
	out := make([]string, 0, len(lines)+1)
	out = append(out, fmt.Sprintf("> (Turn %d) [%s]:", t.ID, t.Role))
	for _, ln := range lines {
		out = append(out, "> "+ln)
	}
	return strings.Join(out, "\n")
}

// ReadText reads path, returning "" (not an error) if it does not
// exist, matching the tool's read-text-or-empty convention.
func ReadText(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

// Append writes s to path in a single Write call, so a turn's body
// and reply reach the file together rather than in two separate
// writes (the original's two-call body-then-reply append leaves a gap
// between them). A concurrent reader can still see a partially
// written append.
func Append(path, s string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("transcript: append %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(s); err != nil {
		return fmt.Errorf("transcript: append %s: %w", path, err)
	}
	return nil
}

// Counter is the persisted, monotonically increasing turn minter
// backing Next. Next reconciles its on-disk value against the
// transcript's own highest turn id every time it mints, so a
// transcript edited or replaced out from under it is never
// undercounted.
type Counter struct {
	Path           string
	TranscriptPath string
}

func (c Counter) ensure() error {
	if _, err := os.Stat(c.Path); err == nil {
		return nil
	}
	hi := HighestTurn(ReadText(c.TranscriptPath))
	if hi < 0 {
		hi = 0
	}
	return c.write(hi)
}

func (c Counter) write(n int) error {
	dir := filepath.Dir(c.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(c.Path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.WriteString(strconv.Itoa(n)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, c.Path)
}

// Read returns the persisted counter value, initializing it from the
// transcript's highest turn id if the counter file is absent.
func (c Counter) Read() (int, error) {
	if err := c.ensure(); err != nil {
		return 0, fmt.Errorf("transcript: counter: %w", err)
	}
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return 0, fmt.Errorf("transcript: counter: %w", err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("transcript: counter: %w", err)
	}
	return n, nil
}

// Next mints the next turn id — one greater than the higher of the
// transcript's own highest turn id and the persisted counter — and
// persists it before returning, so ids are strictly monotonic across
// calls that run one after another. There is no locking: two tools
// minting at the same time can read the same value and mint the same
// id.
func (c Counter) Next() (int, error) {
	cur, err := c.Read()
	if err != nil {
		return 0, err
	}
	hi := HighestTurn(ReadText(c.TranscriptPath))
	n := cur
	if hi > n {
		n = hi
	}
	n++
	if err := c.write(n); err != nil {
		return 0, fmt.Errorf("transcript: counter: %w", err)
	}
	return n, nil
}
