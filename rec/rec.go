// Package rec saves acquisition buffers as FITS files in dated folders.
package rec

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/rs/zerolog"

	"github.com/lightsheet-lab/gosols/recon"
)

// Recorder lays acquisitions out as Root/yyyy-mm-dd_NNN_<prefix>/ with data/
// and preview/ subfolders.  Safe for concurrent use; folder creation is
// serialized so two acquisitions never claim the same index.
type Recorder struct {
	Root   string
	Prefix string

	mu  sync.Mutex
	log zerolog.Logger
}

// New returns a recorder rooted at root.  prefix tags the acquisition
// folders, e.g. "ht_sols".
func New(root, prefix string, log zerolog.Logger) *Recorder {
	return &Recorder{Root: root, Prefix: prefix, log: log}
}

// Paths locates one acquisition's files.
type Paths struct {
	Folder  string
	Data    string
	Preview string
}

// Prepare resolves (and creates if needed) the folder for an acquisition and
// returns the file paths for filename.  An empty folder claims a fresh
// index; passing a previous Paths.Folder appends to that acquisition.
func (r *Recorder) Prepare(folder, filename string) (Paths, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if folder == "" {
		date := time.Now().Format("2006-01-02")
		for i := 0; ; i++ {
			folder = path.Join(r.Root, fmt.Sprintf("%s_%03d_%s", date, i, r.Prefix))
			if _, err := os.Stat(folder); os.IsNotExist(err) {
				break
			}
		}
	}
	for _, sub := range []string{"data", "preview"} {
		if err := os.MkdirAll(path.Join(folder, sub), 0777); err != nil {
			return Paths{}, err
		}
	}
	if !strings.HasSuffix(filename, ".fits") {
		filename += ".fits"
	}
	return Paths{
		Folder:  folder,
		Data:    path.Join(folder, "data", filename),
		Preview: path.Join(folder, "preview", filename),
	}, nil
}

// SaveStack writes a raw 5-D stack; frames are flattened in tzcyx order.
func (r *Recorder) SaveStack(filename string, s *recon.Stack, cards []fitsio.Card) error {
	return r.save(filename, s.Data, s.X, s.Y, s.T*s.Z*s.C, cards)
}

// SaveCanvas writes a 4-D preview; frames are flattened in tcyx order.
func (r *Recorder) SaveCanvas(filename string, c *recon.Canvas, cards []fitsio.Card) error {
	return r.save(filename, c.Data, c.X, c.Y, c.T*c.C, cards)
}

func (r *Recorder) save(filename string, pix []uint16, width, height, frames int, cards []fitsio.Card) error {
	fid, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer fid.Close()
	if err := writeFits(fid, cards, pix, width, height, frames); err != nil {
		return err
	}
	r.log.Debug().Str("file", filename).Int("frames", frames).Msg("fits written")
	return nil
}

// writeFits streams pix as a 16-bit FITS image.  Unsigned pixels are stored
// per convention as offset int16 with BZERO 32768.
func writeFits(w io.Writer, cards []fitsio.Card, pix []uint16, width, height, frames int) error {
	cards = append(cards,
		fitsio.Card{Name: "BZERO", Value: 32768},
		fitsio.Card{Name: "BSCALE", Value: 1.0})
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	dims := []int{width, height}
	if frames > 1 {
		dims = append(dims, frames)
	}
	im := fitsio.NewImage(16, dims)
	defer im.Close()
	if err := im.Header().Append(cards...); err != nil {
		return err
	}
	ints := make([]int16, len(pix))
	for i, v := range pix {
		ints[i] = int16(v - 32768)
	}
	if err := im.Write(ints); err != nil {
		return err
	}
	return fits.Write(im)
}
