package kv

import "testing"

// memFile is an in-memory File for tests, independent of the platform
// package's filesystem adapter.
type memFile struct {
	data []byte
}

func (f *memFile) ReadAll() ([]byte, error) { return append([]byte(nil), f.data...), nil }
func (f *memFile) WriteAll(b []byte) error  { f.data = append([]byte(nil), b...); return nil }
func (f *memFile) Remove() error            { f.data = nil; return nil }

func TestSetGetRoundTrip(t *testing.T) {
	s, err := Open(&memFile{})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set("counter", []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 3)
	n, err := s.Get("counter", buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || string(buf) != "\x01\x02\x03" {
		t.Fatalf("got %v", buf[:n])
	}
}

func TestGetTruncated(t *testing.T) {
	s, _ := Open(&memFile{})
	s.Set("k", []byte("hello"))
	buf := make([]byte, 2)
	n, err := s.Get("k", buf)
	if err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if n != 2 || string(buf) != "he" {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestGetNotFound(t *testing.T) {
	s, _ := Open(&memFile{})
	_, err := s.Get("missing", make([]byte, 4))
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetOverwritesInPlace(t *testing.T) {
	s, _ := Open(&memFile{})
	s.Set("k", []byte("first"))
	s.Set("k", []byte("second-value"))
	if s.Count() != 1 {
		t.Fatalf("expected 1 record, got %d", s.Count())
	}
	buf := make([]byte, 20)
	n, err := s.Get("k", buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "second-value" {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestCapacity64Entries(t *testing.T) {
	s, _ := Open(&memFile{})
	for i := 0; i < MaxEntries; i++ {
		key := string(rune('a' + i%26))
		if i >= 26 {
			key = key + string(rune('a'+i/26))
		}
		if err := s.Set(key, []byte{byte(i)}); err != nil {
			t.Fatalf("set %d (%s) failed: %v", i, key, err)
		}
	}
	if s.Count() != MaxEntries {
		t.Fatalf("expected %d entries, got %d", MaxEntries, s.Count())
	}
	if err := s.Set("toomany", []byte{0}); err != ErrAppend {
		t.Fatalf("expected ErrAppend for 65th key, got %v", err)
	}
}

func TestInvalidKey(t *testing.T) {
	s, _ := Open(&memFile{})
	if err := s.Set("", []byte{1}); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid for empty key, got %v", err)
	}
	if err := s.Set("this-key-is-too-long", []byte{1}); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid for long key, got %v", err)
	}
}

func TestInvalidValue(t *testing.T) {
	s, _ := Open(&memFile{})
	if err := s.Set("k", nil); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid for empty value, got %v", err)
	}
	big := make([]byte, MaxValueLen+1)
	if err := s.Set("k", big); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid for oversized value, got %v", err)
	}
}

func TestWipe(t *testing.T) {
	s, _ := Open(&memFile{})
	s.Set("k", []byte{1})
	if err := s.Wipe(); err != nil {
		t.Fatal(err)
	}
	if s.Count() != 0 {
		t.Fatalf("expected 0 entries after wipe, got %d", s.Count())
	}
	if _, err := s.Get("k", make([]byte, 1)); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after wipe, got %v", err)
	}
}
