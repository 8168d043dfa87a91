package rec

import (
	"os"
	"path"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/rs/zerolog"

	"github.com/lightsheet-lab/gosols/recon"
)

func TestPrepareClaimsFreshFolders(t *testing.T) {
	r := New(t.TempDir(), "ht_sols", zerolog.Nop())
	p1, err := r.Prepare("", "a")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := r.Prepare("", "a")
	if err != nil {
		t.Fatal(err)
	}
	if p1.Folder == p2.Folder {
		t.Errorf("both acquisitions claimed %s", p1.Folder)
	}
	p3, err := r.Prepare(p1.Folder, "b")
	if err != nil {
		t.Fatal(err)
	}
	if p3.Folder != p1.Folder {
		t.Errorf("explicit folder not reused: %s vs %s", p3.Folder, p1.Folder)
	}
	if path.Base(p3.Data) != "b.fits" {
		t.Errorf("data file %s, want b.fits", p3.Data)
	}
	for _, sub := range []string{"data", "preview"} {
		if _, err := os.Stat(path.Join(p1.Folder, sub)); err != nil {
			t.Errorf("missing %s subfolder: %v", sub, err)
		}
	}
}

func TestSaveStackRoundTrips(t *testing.T) {
	r := New(t.TempDir(), "ht_sols", zerolog.Nop())
	p, err := r.Prepare("", "stack")
	if err != nil {
		t.Fatal(err)
	}
	s := recon.NewStack(1, 2, 1, 4, 6)
	s.Set(0, 1, 0, 2, 3, 1234)
	cards := []fitsio.Card{{Name: "SAMPLERI", Value: 1.33, Comment: "sample refractive index"}}
	if err := r.SaveStack(p.Data, s, cards); err != nil {
		t.Fatal(err)
	}

	fid, err := os.Open(p.Data)
	if err != nil {
		t.Fatal(err)
	}
	defer fid.Close()
	f, err := fitsio.Open(fid)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	hdu := f.HDU(0)
	hdr := hdu.Header()
	if c := hdr.Get("SAMPLERI"); c == nil {
		t.Error("metadata card lost")
	}
	axes := hdr.Axes()
	if len(axes) != 3 || axes[0] != 6 || axes[1] != 4 || axes[2] != 2 {
		t.Errorf("axes %v, want [6 4 2]", axes)
	}
}
