package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vitaminmoo/gattprov/internal/handles"
	"github.com/vitaminmoo/gattprov/internal/provision"
	"github.com/vitaminmoo/gattprov/internal/stack"
	"github.com/vitaminmoo/gattprov/internal/uuidgen"
)

var base = uuidgen.MustParse("367ec074-9a6c-11ea-8ad0-377f1627427f")

func table(n int) provision.Result {
	res := provision.Result{
		Name:          "TESTER",
		ServiceUUID:   base,
		ServiceHandle: handles.FirstService,
		Policy:        provision.PolicyFormula,
	}
	for i, id := range uuidgen.Sequence(base, n) {
		res.Characteristics = append(res.Characteristics, provision.Characteristic{
			Index:                    i,
			UUID:                     id,
			ValueHandle:              handles.ValueHandle(i),
			DescriptorHandle:         handles.DescriptorHandle(i),
			ReportedValueHandle:      handles.ValueHandle(i),
			ReportedDescriptorHandle: handles.DescriptorHandle(i),
		})
	}
	return res
}

func TestContentHash(t *testing.T) {
	a, err := ContentHash(table(3))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(a, "sha256:") || len(a) != len("sha256:")+64 {
		t.Errorf("hash = %q", a)
	}

	// diagnostics and name do not change the identity
	noisy := table(3)
	noisy.Name = "OTHER"
	noisy.Stats.Ignored = 4
	noisy.Characteristics[1].ValueStatus = stack.StatusError
	if b, _ := ContentHash(noisy); b != a {
		t.Error("hash covers volatile fields")
	}

	moved := table(3)
	moved.Characteristics[2].DescriptorHandle = 0x99
	if c, _ := ContentHash(moved); c == a {
		t.Error("hash ignores handles")
	}
	if d, _ := ContentHash(table(4)); d == a {
		t.Error("hash ignores length")
	}

	if _, err := ContentHash(provision.Result{}); err == nil {
		t.Error("empty table hashed")
	}
}

func TestShortHash(t *testing.T) {
	h := "sha256:0123456789abcdef0123"
	if got := ShortHash(h); got != "0123456789ab" {
		t.Errorf("ShortHash = %q", got)
	}
	if got := ShortHash("abc"); got != "abc" {
		t.Errorf("ShortHash(short) = %q", got)
	}
}

func TestImportGetList(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	src := Source{Backend: "sim", Timestamp: time.Now(), Method: "provision"}
	hash, isNew, err := s.Import(table(3), src)
	if err != nil {
		t.Fatal(err)
	}
	if !isNew {
		t.Error("first import not new")
	}

	again, isNew, err := s.Import(table(3), src)
	if err != nil {
		t.Fatal(err)
	}
	if isNew || again != hash {
		t.Errorf("re-import = %s new=%v", again, isNew)
	}
	if _, _, err := s.Import(table(1), src); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(hash)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Characteristics) != 3 || got.Characteristics[2].UUID != table(3).Characteristics[2].UUID {
		t.Errorf("Get = %+v", got)
	}

	meta, err := s.GetMetadata(hash)
	if err != nil {
		t.Fatal(err)
	}
	if len(meta.Sources) != 2 || meta.Chars != 3 || meta.ServiceUUID != base.String() {
		t.Errorf("metadata = %+v", meta)
	}

	list, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("List = %+v", list)
	}
	for _, l := range list {
		if l.Hash == hash && l.Runs != 2 {
			t.Errorf("runs = %d", l.Runs)
		}
	}
	if n, _ := s.Count(); n != 2 {
		t.Errorf("Count = %d", n)
	}

	dest := filepath.Join(t.TempDir(), "table.json")
	if err := s.Export(hash, dest); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(dest); err != nil || info.Size() == 0 {
		t.Errorf("export: %v", err)
	}
}

func TestResolve(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	hash, _, err := s.Import(table(2), Source{Backend: "sim"})
	if err != nil {
		t.Fatal(err)
	}

	for _, ref := range []string{hash, ShortHash(hash), strings.ToUpper(ShortHash(hash)), hashToFilename(hash)} {
		got, err := s.Resolve(ref)
		if err != nil || got != hash {
			t.Errorf("Resolve(%q) = %q, %v", ref, got, err)
		}
	}

	if _, err := s.Resolve("zzzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(unknown) = %v", err)
	}
	if _, err := s.Get("sha256:00"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) = %v", err)
	}

	if _, _, err := s.Import(table(5), Source{Backend: "sim"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Resolve(""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(empty) = %v", err)
	}
}
