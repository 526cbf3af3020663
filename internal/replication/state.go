// Package replication follows an OSM replication feed and invalidates the tiles each
// diff touches.
package replication

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidState means the cursor is missing or unreadable. The loop cannot pick a
// starting sequence on its own, so this is fatal.
var ErrInvalidState = errors.New("replication: invalid state")

// State is a replication cursor: the last diff applied and the feed time it represents.
type State struct {
	SequenceNumber int64
	Timestamp      time.Time
	// Extra holds any other keys of the state file, preserved on save.
	Extra map[string]string
}

// SequencePath zero-pads seq to nine digits and splits it into AAA/BBB/CCC.
func SequencePath(seq int64) string {
	s := fmt.Sprintf("%09d", seq)
	return s[0:3] + "/" + s[3:6] + "/" + s[6:]
}

// ParseState reads a key=value state file. Lines starting with # are comments and
// values may escape ':' and '=' with a backslash. The time comes from "timestamp" or,
// failing that, "osm_base".
func ParseState(r io.Reader) (State, error) {
	kv := map[string]string{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return State{}, fmt.Errorf("%w: line %q has no '='", ErrInvalidState, line)
		}
		kv[strings.TrimSpace(k)] = unescape(strings.TrimSpace(v))
	}
	if err := sc.Err(); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	raw, ok := kv["sequenceNumber"]
	if !ok {
		return State{}, fmt.Errorf("%w: sequenceNumber missing", ErrInvalidState)
	}
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seq < 0 {
		return State{}, fmt.Errorf("%w: sequenceNumber %q", ErrInvalidState, raw)
	}
	tsKey := "timestamp"
	if _, ok := kv[tsKey]; !ok {
		tsKey = "osm_base"
	}
	rawTS, ok := kv[tsKey]
	if !ok {
		return State{}, fmt.Errorf("%w: timestamp missing", ErrInvalidState)
	}
	ts, err := time.Parse(time.RFC3339, rawTS)
	if err != nil {
		return State{}, fmt.Errorf("%w: timestamp %q: %v", ErrInvalidState, rawTS, err)
	}

	delete(kv, "sequenceNumber")
	delete(kv, "timestamp")
	st := State{SequenceNumber: seq, Timestamp: ts.UTC()}
	if len(kv) > 0 {
		st.Extra = kv
	}
	return st, nil
}

// Encode writes the state in the feed's own format.
func (s State) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "#%s\n", s.Timestamp.UTC().Format(time.UnixDate))
	keys := make([]string, 0, len(s.Extra))
	for k := range s.Extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(bw, "%s=%s\n", k, escape(s.Extra[k]))
	}
	fmt.Fprintf(bw, "sequenceNumber=%d\n", s.SequenceNumber)
	fmt.Fprintf(bw, "timestamp=%s\n", escape(s.Timestamp.UTC().Format(time.RFC3339)))
	return bw.Flush()
}

func unescape(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] == '\\' && i+1 < len(v) {
			i++
		}
		b.WriteByte(v[i])
	}
	return b.String()
}

func escape(v string) string {
	r := strings.NewReplacer(`\`, `\\`, ":", `\:`, "=", `\=`)
	return r.Replace(v)
}

// Cursor persists the replication state between cycles and restarts.
type Cursor interface {
	Load() (State, error)
	Save(State) error
}

// FileCursor keeps the state in a state.txt style file. Saves replace the file
// atomically so a crash never leaves a partial cursor.
type FileCursor struct {
	Path string
}

func (c FileCursor) Load() (State, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	defer func() { _ = f.Close() }()
	return ParseState(f)
}

func (c FileCursor) Save(s State) error {
	dir := filepath.Dir(c.Path)
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	name := tmp.Name()
	if err := s.Encode(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("save state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("save state: %w", err)
	}
	if err := os.Rename(name, c.Path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
