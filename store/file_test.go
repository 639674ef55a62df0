package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/ibeacon-blue/logger"
	"github.com/user/ibeacon-blue/util"
	"github.com/user/ibeacon-blue/wire/ibeacon"
)

func TestFileLoadMissing(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "prefs.json"))

	_, ok, err := f.Load(context.Background())
	if err != nil {
		t.Fatalf("Load on a missing file failed: %v", err)
	}
	if ok {
		t.Errorf("expected ok=false for a missing file")
	}
}

func TestFileSaveLoad(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "nested", "prefs.json"))
	ctx := context.Background()
	want := ibeacon.DefaultAdvertisement()

	if err := f.Save(ctx, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, ok, err := f.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load = ok %v, err %v", ok, err)
	}
	if got != want {
		t.Errorf("Load = %s, want %s", got, want)
	}

	data, err := os.ReadFile(f.Path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var prefs map[string]string
	if err := json.Unmarshal(data, &prefs); err != nil {
		t.Fatalf("prefs file is not JSON: %v", err)
	}
	if prefs[Key] != "AhXTy9aqqqqqqqqqqqqqH+7u/u+v+sU=" {
		t.Errorf("stored value = %q", prefs[Key])
	}
}

func TestFilePreservesOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	if err := os.WriteFile(path, []byte(`{"theme":"dark"}`), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f := NewFile(path)
	if err := f.Save(context.Background(), ibeacon.DefaultAdvertisement()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	var prefs map[string]string
	if err := json.Unmarshal(data, &prefs); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if prefs["theme"] != "dark" {
		t.Errorf("unrelated key lost: %+v", prefs)
	}
}

func TestFileEmptyValueIsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	if err := os.WriteFile(path, []byte(`{"advertising_data":""}`), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, ok, err := NewFile(path).Load(context.Background())
	if err != nil || ok {
		t.Errorf("Load = ok %v, err %v; want absent", ok, err)
	}
}

func TestFileCorruptValue(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not base64", `{"advertising_data":"***"}`},
		{"wrong length", `{"advertising_data":"AhU="}`},
		{"not json", `{advertising_data`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "prefs.json")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			_, ok, err := NewFile(path).Load(context.Background())
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("expected ErrCorrupt, got %v", err)
			}
			if ok {
				t.Errorf("expected ok=false for corrupt data")
			}
		})
	}
}

func TestNewFileDefaultsToDataDir(t *testing.T) {
	t.Setenv(util.DataDirEnv, t.TempDir())

	f := NewFile("")
	if f.Path() != util.GetPrefsPath() {
		t.Errorf("Path() = %s, want %s", f.Path(), util.GetPrefsPath())
	}
}

func TestFileSaveTracesPrefs(t *testing.T) {
	var buf bytes.Buffer
	prev := logger.GetLevel()
	logger.SetOutput(&buf)
	logger.SetLevel(logger.TRACE)
	t.Cleanup(func() {
		logger.SetOutput(os.Stdout)
		logger.SetLevel(prev)
	})

	f := NewFile(filepath.Join(t.TempDir(), "prefs.json"))
	if err := f.Save(context.Background(), ibeacon.DefaultAdvertisement()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "prefs:") || !strings.Contains(out, Key) {
		t.Errorf("prefs not traced:\n%s", out)
	}
}
