package replication

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const minuteState = `#Sat Jan 03 10:00:02 UTC 2026
sequenceNumber=4123456
timestamp=2026-01-03T10\:00\:00Z
`

func TestSequencePath(t *testing.T) {
	cases := map[int64]string{
		0:         "000/000/000",
		7:         "000/000/007",
		4123456:   "004/123/456",
		999999999: "999/999/999",
	}
	for seq, want := range cases {
		if got := SequencePath(seq); got != want {
			t.Errorf("SequencePath(%d)=%s want %s", seq, got, want)
		}
	}
}

func TestParseState(t *testing.T) {
	st, err := ParseState(strings.NewReader(minuteState))
	if err != nil {
		t.Fatal(err)
	}
	want := State{SequenceNumber: 4123456, Timestamp: time.Date(2026, 1, 3, 10, 0, 0, 0, time.UTC)}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Fatalf("state (-want +got):\n%s", diff)
	}
}

func TestParseState_OsmBaseAndExtra(t *testing.T) {
	in := "txnMax=99\nsequenceNumber=12\nosm_base=2026-01-03T10\\:00\\:00Z\n"
	st, err := ParseState(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if st.SequenceNumber != 12 || st.Timestamp.Hour() != 10 {
		t.Fatalf("state=%+v", st)
	}
	if st.Extra["txnMax"] != "99" || st.Extra["osm_base"] != "2026-01-03T10:00:00Z" {
		t.Fatalf("extra=%v", st.Extra)
	}
}

func TestParseState_Invalid(t *testing.T) {
	for name, in := range map[string]string{
		"empty":        "",
		"no seq":       "timestamp=2026-01-03T10\\:00\\:00Z\n",
		"bad seq":      "sequenceNumber=abc\ntimestamp=2026-01-03T10\\:00\\:00Z\n",
		"negative seq": "sequenceNumber=-1\ntimestamp=2026-01-03T10\\:00\\:00Z\n",
		"no ts":        "sequenceNumber=1\n",
		"bad ts":       "sequenceNumber=1\ntimestamp=yesterday\n",
		"no equals":    "sequenceNumber\n",
	} {
		if _, err := ParseState(strings.NewReader(in)); !errors.Is(err, ErrInvalidState) {
			t.Errorf("%s: err=%v", name, err)
		}
	}
}

func TestState_EncodeParses(t *testing.T) {
	st := State{
		SequenceNumber: 42,
		Timestamp:      time.Date(2026, 5, 1, 12, 30, 0, 0, time.UTC),
		Extra:          map[string]string{"note": "a=b:c"},
	}
	var buf bytes.Buffer
	if err := st.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `timestamp=2026-05-01T12\:30\:00Z`) {
		t.Fatalf("encoded:\n%s", buf.String())
	}
	got, err := ParseState(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(st, got); diff != "" {
		t.Fatalf("state (-want +got):\n%s", diff)
	}
}

func TestFileCursor(t *testing.T) {
	p := filepath.Join(t.TempDir(), "state.txt")
	c := FileCursor{Path: p}
	if _, err := c.Load(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("missing file err=%v", err)
	}
	if err := os.WriteFile(p, []byte(minuteState), 0o644); err != nil {
		t.Fatal(err)
	}
	st, err := c.Load()
	if err != nil {
		t.Fatal(err)
	}
	st.SequenceNumber++
	if err := c.Save(st); err != nil {
		t.Fatal(err)
	}
	again, err := c.Load()
	if err != nil {
		t.Fatal(err)
	}
	if again.SequenceNumber != 4123457 {
		t.Fatalf("seq=%d", again.SequenceNumber)
	}
	entries, _ := os.ReadDir(filepath.Dir(p))
	if len(entries) != 1 {
		t.Fatalf("leftover files: %v", entries)
	}
}
