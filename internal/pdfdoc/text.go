// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdfdoc

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/pdiddy/paper-digest/pkg/types"
)

// blockGapFactor breaks a block when the vertical gap between rows exceeds
// this multiple of the row's font size.
const blockGapFactor = 1.5

// textRow is one baseline of text in PDF user space (y grows upward).
type textRow struct {
	y, x0, x1 float64
	size      float64
	text      string
}

// TextBlocks returns the page's embedded text grouped into blocks. Each
// block is a "Text" record whose box is expressed in the coordinate space
// of a render at scale, so it lines up with RenderPage output.
func (d *Document) TextBlocks(page int, scale float64) ([]types.RawElement, error) {
	if scale <= 0 {
		scale = DefaultScale
	}
	reader, err := d.textReader()
	if err != nil {
		return nil, err
	}
	height, err := d.pageHeight(page)
	if err != nil {
		return nil, err
	}

	d.textMu.Lock()
	defer d.textMu.Unlock()

	if page < 0 || page >= reader.NumPage() {
		return nil, fmt.Errorf("page %d out of range", page+1)
	}
	p := reader.Page(page + 1)
	if p.V.IsNull() {
		return nil, nil
	}
	rows, err := p.GetTextByRow()
	if err != nil {
		return nil, fmt.Errorf("reading text of page %d: %w", page+1, err)
	}

	converted := make([]textRow, 0, len(rows))
	for _, r := range rows {
		if tr, ok := convertRow(r.Content); ok {
			converted = append(converted, tr)
		}
	}
	return groupRows(converted, height, scale), nil
}

func (d *Document) textReader() (*pdf.Reader, error) {
	d.textOnce.Do(func() {
		f, r, err := pdf.Open(d.path)
		if err != nil {
			d.textErr = fmt.Errorf("opening text layer of %s: %w", d.path, err)
			return
		}
		d.textMu.Lock()
		d.textFile, d.text = f, r
		d.textMu.Unlock()
	})
	return d.text, d.textErr
}

// convertRow joins the glyph runs of one row left to right, inserting a
// space where runs are visibly apart.
func convertRow(runs pdf.TextHorizontal) (textRow, bool) {
	if len(runs) == 0 {
		return textRow{}, false
	}
	sorted := make([]pdf.Text, len(runs))
	copy(sorted, runs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	var b strings.Builder
	row := textRow{y: sorted[0].Y, x0: sorted[0].X, x1: sorted[0].X}
	prevEnd := math.Inf(-1)
	for _, t := range sorted {
		if t.FontSize > row.size {
			row.size = t.FontSize
		}
		if b.Len() > 0 && t.X-prevEnd > 0.15*t.FontSize && !strings.HasPrefix(t.S, " ") {
			b.WriteByte(' ')
		}
		b.WriteString(t.S)
		prevEnd = t.X + t.W
		if prevEnd > row.x1 {
			row.x1 = prevEnd
		}
		if t.Y < row.y {
			row.y = t.Y
		}
	}
	row.text = strings.TrimSpace(b.String())
	if row.text == "" {
		return textRow{}, false
	}
	if row.size <= 0 {
		row.size = 10
	}
	return row, true
}

// groupRows merges rows into blocks top to bottom, starting a new block
// whenever the gap to the previous row is wider than blockGapFactor line
// heights. pageHeight flips PDF y-up coordinates to image y-down.
func groupRows(rows []textRow, pageHeight, scale float64) []types.RawElement {
	if len(rows) == 0 {
		return nil
	}
	sorted := make([]textRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].y > sorted[j].y })

	var (
		blocks []types.RawElement
		lines  []string
		box    [4]float64 // x0, top, x1, bottom in PDF space
	)
	flush := func() {
		if len(lines) == 0 {
			return
		}
		blocks = append(blocks, types.RawElement{
			Category: "Text",
			BBox: []float64{
				box[0] * scale,
				(pageHeight - box[1]) * scale,
				box[2] * scale,
				(pageHeight - box[3]) * scale,
			},
			Text: strings.Join(lines, "\n"),
		})
		lines = nil
	}

	prevY := math.Inf(1)
	for _, r := range sorted {
		if len(lines) > 0 && prevY-r.y > blockGapFactor*r.size {
			flush()
		}
		if len(lines) == 0 {
			box = [4]float64{r.x0, r.y + r.size, r.x1, r.y}
		} else {
			box[0] = math.Min(box[0], r.x0)
			box[2] = math.Max(box[2], r.x1)
			box[3] = math.Min(box[3], r.y)
		}
		lines = append(lines, r.text)
		prevY = r.y
	}
	flush()
	return blocks
}
