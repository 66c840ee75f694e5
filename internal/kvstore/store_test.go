package kvstore

import (
	"context"
	"path/filepath"
	"testing"
)

func storeBackends(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "profile.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sq,
	}
}

func TestStore_GetSet(t *testing.T) {
	for name, s := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, ok, err := s.Get(ctx, "settings"); err != nil || ok {
				t.Fatalf("Get() on empty store = ok %v, err %v; want miss", ok, err)
			}
			if err := s.Set(ctx, "settings", []byte(`{"theme":"dark"}`)); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if err := s.Set(ctx, "settings", []byte(`{"theme":"light"}`)); err != nil {
				t.Fatalf("Set() overwrite error = %v", err)
			}
			got, ok, err := s.Get(ctx, "settings")
			if err != nil || !ok {
				t.Fatalf("Get() = ok %v, err %v; want hit", ok, err)
			}
			if string(got) != `{"theme":"light"}` {
				t.Errorf("Get() = %s, want last written value", got)
			}
		})
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	type payload struct {
		Name string `json:"name"`
	}
	var out payload
	ok, err := GetJSON(ctx, s, "missing", &out)
	if err != nil || ok {
		t.Fatalf("GetJSON() missing = ok %v, err %v", ok, err)
	}

	if err := SetJSON(ctx, s, "p", payload{Name: "Oslo"}); err != nil {
		t.Fatalf("SetJSON() error = %v", err)
	}
	ok, err = GetJSON(ctx, s, "p", &out)
	if err != nil || !ok || out.Name != "Oslo" {
		t.Fatalf("GetJSON() = %+v ok %v err %v", out, ok, err)
	}

	_ = s.Set(ctx, "corrupt", []byte("{not json"))
	if ok, err := GetJSON(ctx, s, "corrupt", &out); err == nil || ok {
		t.Errorf("GetJSON() corrupt = ok %v, err %v; want decode error", ok, err)
	}
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	buf := []byte("abc")
	_ = s.Set(ctx, "k", buf)
	buf[0] = 'z'

	got, _, _ := s.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("Get() = %s, want stored copy abc", got)
	}
}

func TestParseAddrs(t *testing.T) {
	got := parseAddrs(" a:1, ,b:2 ")
	if len(got) != 2 || got[0] != "a:1" || got[1] != "b:2" {
		t.Errorf("parseAddrs() = %v", got)
	}
}
