package cachefile

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/matryer/is"
)

type testSnapshot struct {
	Name   string         `json:"name"`
	Counts map[string]int `json:"counts"`
}

func TestSaveRestore(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "cache", "snapshot.json.gz")

	saved := testSnapshot{
		Name:   "nz-akl",
		Counts: map[string]int{"59196": 2, "59220": 1},
	}
	err := Save(path, &saved)
	is.NoErr(err)

	var restored testSnapshot
	found, err := Restore(path, &restored)
	is.NoErr(err)
	is.True(found)
	if !reflect.DeepEqual(saved, restored) {
		t.Errorf("Restore() = %+v, want %+v", restored, saved)
	}

	// no temporary file should remain after a successful save
	_, err = os.Stat(path + ".tmp")
	is.True(os.IsNotExist(err))
}

func TestRestoreMissingFile(t *testing.T) {
	is := is.New(t)
	var restored testSnapshot
	found, err := Restore(filepath.Join(t.TempDir(), "never-written.json.gz"), &restored)
	is.NoErr(err)
	is.True(!found)
}

func TestRestoreCorruptFile(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "corrupt.json.gz")
	err := os.WriteFile(path, []byte("not gzip data"), 0o644)
	is.NoErr(err)

	var restored testSnapshot
	found, err := Restore(path, &restored)
	is.True(err != nil)
	is.True(!found)
}

func TestSaveOverwritesPrevious(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "snapshot.json.gz")

	is.NoErr(Save(path, &testSnapshot{Name: "first"}))
	is.NoErr(Save(path, &testSnapshot{Name: "second"}))

	var restored testSnapshot
	found, err := Restore(path, &restored)
	is.NoErr(err)
	is.True(found)
	is.Equal("second", restored.Name)
}

func TestSavedFileIsGzip(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "snapshot.json.gz")
	is.NoErr(Save(path, &testSnapshot{Name: "nz-wlg"}))

	file, err := os.Open(path)
	is.NoErr(err)
	defer func() {
		_ = file.Close()
	}()
	_, err = gzip.NewReader(file)
	is.NoErr(err)
}
