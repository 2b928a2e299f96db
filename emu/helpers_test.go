package emu

import (
	"bytes"
	"flag"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

var updateGolden = flag.Bool("update", false, "update golden files")

// diffFrame compares img with testdata/<name>.png.golden. With -update the
// golden file is rewritten instead.
func diffFrame(t *testing.T, img *image.RGBA, name string) {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	golden := filepath.Join("testdata", name+".png.golden")
	if *updateGolden {
		if err := os.MkdirAll("testdata", 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(golden, buf.Bytes(), 0644); err != nil {
			t.Fatal(err)
		}
		return
	}

	want, err := os.ReadFile(golden)
	if os.IsNotExist(err) {
		t.Logf("no golden file %s, run with -update to create it", golden)
		return
	}
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), want) {
		got := filepath.Join(t.TempDir(), name+".png")
		os.WriteFile(got, buf.Bytes(), 0644)
		t.Fatalf("frame %s differs from golden file, check %s", name, got)
	}
}
