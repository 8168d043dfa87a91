// Package plate generates stage positions for scanning multiwell plates.
package plate

import (
	"fmt"
	"strconv"
)

// Layout describes a multiwell plate and the tile grid inside each well.
// Rows are lettered A..P, columns numbered from 1.  Calibration comes from
// two measured stage positions of well A1: its upper-left and lower-right
// edges; the well center is their midpoint.
type Layout struct {
	TotalRows     int     `koanf:"total_rows"`     // 8 for 96-well, 16 for 384-well
	TotalCols     int     `koanf:"total_cols"`     // 12 for 96-well, 24 for 384-well
	WellSpacingMm float64 `koanf:"well_spacing_mm"`

	// Tiles per well and their pitch; one field of view for touching
	// tiles, 90% of one for a stitching overlap.
	TileRows       int     `koanf:"tile_rows"`
	TileCols       int     `koanf:"tile_cols"`
	TileSpacingXMm float64 `koanf:"tile_spacing_x_mm"`
	TileSpacingYMm float64 `koanf:"tile_spacing_y_mm"`

	A1UpperLeftXMm  float64 `koanf:"a1_ul_x_mm"`
	A1UpperLeftYMm  float64 `koanf:"a1_ul_y_mm"`
	A1LowerRightXMm float64 `koanf:"a1_lr_x_mm"`
	A1LowerRightYMm float64 `koanf:"a1_lr_y_mm"`
}

// Position is one stage target: a well/tile label like "B03r01c00" and an
// absolute stage position.
type Position struct {
	Label string
	XMm   float64
	YMm   float64
}

// Positions generates the serpentine visit order for the wells from start to
// stop (inclusive corner labels like "A1", "B2").  Columns advance slowly
// and rows snake so the stage's fast axis moves most often; the tile grid
// inside each well snakes the same way and is centered on the well.
func (l Layout) Positions(start, stop string) ([]Position, error) {
	if l.TotalRows < 1 || l.TotalRows > 16 {
		return nil, fmt.Errorf("plate: total rows %d outside [1, 16]", l.TotalRows)
	}
	if l.TotalCols < 1 || l.TotalCols > 24 {
		return nil, fmt.Errorf("plate: total cols %d outside [1, 24]", l.TotalCols)
	}
	if l.TileRows < 1 || l.TileCols < 1 {
		return nil, fmt.Errorf("plate: tile grid %dx%d must be at least 1x1", l.TileRows, l.TileCols)
	}
	r0, c0, err := l.parseWell(start)
	if err != nil {
		return nil, err
	}
	r1, c1, err := l.parseWell(stop)
	if err != nil {
		return nil, err
	}
	if r0 > r1 || c0 > c1 {
		return nil, fmt.Errorf("plate: start %s is past stop %s", start, stop)
	}

	a1x := l.A1UpperLeftXMm - 0.5*(l.A1UpperLeftXMm-l.A1LowerRightXMm)
	a1y := l.A1UpperLeftYMm - 0.5*(l.A1UpperLeftYMm-l.A1LowerRightYMm)
	offX := 0.5 * float64(l.TileCols-1) * l.TileSpacingXMm
	offY := 0.5 * float64(l.TileRows-1) * l.TileSpacingYMm

	var out []Position
	for c := c0; c <= c1; c++ {
		for ri := 0; ri <= r1-r0; ri++ {
			r := r0 + ri
			if (c-c0)%2 == 1 { // snake the row direction
				r = r1 - ri
			}
			wellX := a1x - float64(c)*l.WellSpacingMm
			wellY := a1y + float64(r)*l.WellSpacingMm
			for tc := 0; tc < l.TileCols; tc++ {
				for ti := 0; ti < l.TileRows; ti++ {
					tr := ti
					if tc%2 == 1 {
						tr = l.TileRows - 1 - ti
					}
					out = append(out, Position{
						Label: fmt.Sprintf("%c%02dr%02dc%02d",
							'A'+r, c+1, tr, tc),
						XMm: wellX + offX - float64(tc)*l.TileSpacingXMm,
						YMm: wellY - offY + float64(tr)*l.TileSpacingYMm,
					})
				}
			}
		}
	}
	return out, nil
}

// parseWell turns a label like "C12" into zero-based row and column indices.
func (l Layout) parseWell(label string) (row, col int, err error) {
	if len(label) < 2 {
		return 0, 0, fmt.Errorf("plate: bad well label %q", label)
	}
	row = int(label[0] - 'A')
	if row < 0 || row >= l.TotalRows {
		return 0, 0, fmt.Errorf("plate: row %q outside plate", label[:1])
	}
	n, err := strconv.Atoi(label[1:])
	if err != nil || n < 1 || n > l.TotalCols {
		return 0, 0, fmt.Errorf("plate: column %q outside plate", label[1:])
	}
	return row, n - 1, nil
}
