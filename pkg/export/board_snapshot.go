// Package export renders the displayed board to static files: SVG or PNG
// diagrams and markdown game reports.
package export

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"git.sr.ht/~sbinet/gg"
	"github.com/ajstarks/svgo"
	"golang.org/x/image/font/basicfont"

	"github.com/vanderheijden86/boardsync/pkg/model"
)

// BoardSnapshotOptions controls board diagram export.
type BoardSnapshotOptions struct {
	Path     string // Output path; format inferred from extension when Format empty
	Format   string // "svg" or "png" (case-insensitive). If empty, inferred from Path.
	Title    string // Rendered in the header, e.g. "White vs Black, move 12"
	Caption  string // Rendered under the title, usually the FEN
	Pieces   []model.RenderedPiece
	Arrows   []model.Arrow
	LastMove *model.Arrow
	Flipped  bool
}

// SaveBoardSnapshot renders the board with its arrows to an SVG or PNG file.
func SaveBoardSnapshot(opts BoardSnapshotOptions) error {
	format := strings.ToLower(strings.TrimPrefix(opts.Format, "."))
	if format == "" {
		switch strings.ToLower(filepath.Ext(opts.Path)) {
		case ".svg":
			format = "svg"
		case ".png":
			format = "png"
		default:
			format = "svg"
			if opts.Path != "" && filepath.Ext(opts.Path) == "" {
				opts.Path = opts.Path + ".svg"
			}
		}
	}
	if format != "svg" && format != "png" {
		return fmt.Errorf("unsupported format %q (want svg or png)", format)
	}
	if opts.Path == "" {
		return fmt.Errorf("output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	layout := buildLayout(opts)
	switch format {
	case "png":
		return renderPNG(opts.Path, layout)
	default:
		f, err := os.Create(opts.Path)
		if err != nil {
			return err
		}
		defer f.Close()
		return RenderSVG(f, opts)
	}
}

// --- layout ----------------------------------------------------------------

const (
	squareSize = 64
	margin     = 24
	headerH    = 64
)

type layoutSquare struct {
	X, Y  float64
	Light bool
	Coord model.Coord
}

type layoutPiece struct {
	CX, CY float64
	Piece  model.RenderedPiece
}

type layoutArrow struct {
	X1, Y1, X2, Y2 float64
	Color          color.RGBA
	Kind           model.ArrowKind
}

type layoutResult struct {
	Width, Height int
	Title         string
	Caption       string
	Squares       []layoutSquare
	Highlights    []layoutSquare
	Pieces        []layoutPiece
	Arrows        []layoutArrow
	Files         []string
	Ranks         []string
}

func buildLayout(opts BoardSnapshotOptions) layoutResult {
	l := layoutResult{
		Width:   2*margin + 8*squareSize,
		Height:  headerH + 2*margin + 8*squareSize,
		Title:   opts.Title,
		Caption: opts.Caption,
	}
	if l.Title == "" {
		l.Title = "boardsync"
	}

	origin := func(c model.Coord) (float64, float64) {
		if opts.Flipped {
			c = c.Flip()
		}
		return float64(margin + c.Col*squareSize), float64(headerH + margin + c.Row*squareSize)
	}
	center := func(c model.Coord) (float64, float64) {
		x, y := origin(c)
		return x + squareSize/2, y + squareSize/2
	}

	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			coord := model.Coord{Row: r, Col: c}
			x, y := origin(coord)
			l.Squares = append(l.Squares, layoutSquare{X: x, Y: y, Light: (r+c)%2 == 0, Coord: coord})
		}
	}
	if opts.LastMove != nil {
		for _, c := range []model.Coord{opts.LastMove.From, opts.LastMove.To} {
			if c.Valid() {
				x, y := origin(c)
				l.Highlights = append(l.Highlights, layoutSquare{X: x, Y: y, Coord: c})
			}
		}
	}
	for _, p := range opts.Pieces {
		if !p.Visible || !p.At().Valid() {
			continue
		}
		cx, cy := center(p.At())
		l.Pieces = append(l.Pieces, layoutPiece{CX: cx, CY: cy, Piece: p})
	}
	for _, a := range opts.Arrows {
		if !a.From.Valid() || !a.To.Valid() || a.From == a.To {
			continue
		}
		x1, y1 := center(a.From)
		x2, y2 := center(a.To)
		l.Arrows = append(l.Arrows, layoutArrow{X1: x1, Y1: y1, X2: x2, Y2: y2, Color: parseHex(a.Color), Kind: a.Kind})
	}

	for i := 0; i < 8; i++ {
		file := string(rune('a' + i))
		rank := strconv.Itoa(8 - i)
		if opts.Flipped {
			file = string(rune('h' - i))
			rank = strconv.Itoa(i + 1)
		}
		l.Files = append(l.Files, file)
		l.Ranks = append(l.Ranks, rank)
	}
	return l
}

// --- rendering -------------------------------------------------------------

var (
	colorLight     = color.RGBA{0xf0, 0xd9, 0xb5, 0xff}
	colorDark      = color.RGBA{0xb5, 0x88, 0x63, 0xff}
	colorHighlight = color.RGBA{0xf6, 0xf6, 0x69, 0x90}
	colorStroke    = color.RGBA{0x22, 0x22, 0x22, 0xff}
	colorText      = color.RGBA{0x11, 0x11, 0x11, 0xff}
	colorSubtle    = color.RGBA{0x66, 0x66, 0x66, 0xff}
	colorBackdrop  = color.RGBA{0xf9, 0xfa, 0xfb, 0xff}
	colorHeaderBG  = color.RGBA{0xf3, 0xf4, 0xf6, 0xff}
	colorWhiteMan  = color.RGBA{0xfa, 0xfa, 0xfa, 0xff}
	colorBlackMan  = color.RGBA{0x26, 0x26, 0x26, 0xff}
)

// glyphs are the Unicode chess symbols used in SVG output.
var glyphs = map[model.Color]map[model.Kind]string{
	model.White: {model.King: "♔", model.Queen: "♕", model.Rook: "♖", model.Bishop: "♗", model.Knight: "♘", model.Pawn: "♙"},
	model.Black: {model.King: "♚", model.Queen: "♛", model.Rook: "♜", model.Bishop: "♝", model.Knight: "♞", model.Pawn: "♟"},
}

func renderPNG(path string, l layoutResult) error {
	dc := gg.NewContext(l.Width, l.Height)
	dc.SetColor(colorBackdrop)
	dc.Clear()

	dc.SetColor(colorHeaderBG)
	dc.DrawRoundedRectangle(8, 8, float64(l.Width)-16, headerH-12, 8)
	dc.Fill()
	dc.SetFontFace(basicfont.Face7x13)
	dc.SetColor(colorText)
	dc.DrawStringAnchored(truncate(l.Title, 70), 20, 26, 0, 0.5)
	dc.SetColor(colorSubtle)
	dc.DrawStringAnchored(truncate(l.Caption, 70), 20, 44, 0, 0.5)

	for _, s := range l.Squares {
		dc.SetColor(squareColor(s.Light))
		dc.DrawRectangle(s.X, s.Y, squareSize, squareSize)
		dc.Fill()
	}
	for _, s := range l.Highlights {
		dc.SetColor(colorHighlight)
		dc.DrawRectangle(s.X, s.Y, squareSize, squareSize)
		dc.Fill()
	}
	drawCoordinates(dc, l)

	for _, p := range l.Pieces {
		drawPiece(dc, p)
	}
	for _, a := range l.Arrows {
		drawArrow(dc, a)
	}
	return dc.SavePNG(path)
}

func drawCoordinates(dc *gg.Context, l layoutResult) {
	dc.SetColor(colorSubtle)
	bottom := float64(headerH + margin + 8*squareSize + margin/2)
	for i := 0; i < 8; i++ {
		x := float64(margin + i*squareSize + squareSize/2)
		dc.DrawStringAnchored(l.Files[i], x, bottom, 0.5, 0.5)
		y := float64(headerH + margin + i*squareSize + squareSize/2)
		dc.DrawStringAnchored(l.Ranks[i], margin/2, y, 0.5, 0.5)
	}
}

func drawPiece(dc *gg.Context, p layoutPiece) {
	fill, ink := colorWhiteMan, colorBlackMan
	if p.Piece.Color == model.Black {
		fill, ink = colorBlackMan, colorWhiteMan
	}
	dc.SetColor(fill)
	dc.DrawCircle(p.CX, p.CY, squareSize*0.36)
	dc.Fill()
	dc.SetColor(colorStroke)
	dc.SetLineWidth(1.5)
	dc.DrawCircle(p.CX, p.CY, squareSize*0.36)
	dc.Stroke()
	dc.SetColor(ink)
	dc.DrawStringAnchored(string(p.Piece.Kind.Letter()), p.CX, p.CY, 0.5, 0.35)
}

func drawArrow(dc *gg.Context, a layoutArrow) {
	x2, y2, hx1, hy1, hx2, hy2 := arrowHead(a)
	dc.SetColor(a.Color)
	dc.SetLineWidth(arrowWidth(a.Kind))
	dc.DrawLine(a.X1, a.Y1, x2, y2)
	dc.Stroke()
	dc.NewSubPath()
	dc.MoveTo(a.X2, a.Y2)
	dc.LineTo(hx1, hy1)
	dc.LineTo(hx2, hy2)
	dc.ClosePath()
	dc.Fill()
}

// arrowHead returns where the shaft ends and the two base corners of the
// head, which points at (X2, Y2).
func arrowHead(a layoutArrow) (sx, sy, hx1, hy1, hx2, hy2 float64) {
	const headLen, headHalf = 18.0, 10.0
	dx, dy := a.X2-a.X1, a.Y2-a.Y1
	n := math.Hypot(dx, dy)
	ux, uy := dx/n, dy/n
	sx, sy = a.X2-ux*headLen, a.Y2-uy*headLen
	hx1, hy1 = sx-uy*headHalf, sy+ux*headHalf
	hx2, hy2 = sx+uy*headHalf, sy-ux*headHalf
	return
}

func arrowWidth(k model.ArrowKind) float64 {
	if k == model.ArrowGhost {
		return 4
	}
	return 8
}

// RenderSVG writes the board diagram as SVG.
func RenderSVG(w io.Writer, opts BoardSnapshotOptions) error {
	l := buildLayout(opts)
	canvas := svg.New(w)
	canvas.Start(l.Width, l.Height)
	canvas.Rect(0, 0, l.Width, l.Height, fmt.Sprintf("fill:%s", css(colorBackdrop)))
	canvas.Roundrect(8, 8, l.Width-16, headerH-12, 8, 8, fmt.Sprintf("fill:%s", css(colorHeaderBG)))
	canvas.Text(20, 30, truncate(l.Title, 70), fmt.Sprintf("fill:%s;font-size:16px;font-family:monospace;font-weight:bold", css(colorText)))
	canvas.Text(20, 48, truncate(l.Caption, 80), fmt.Sprintf("fill:%s;font-size:11px;font-family:monospace", css(colorSubtle)))

	for _, s := range l.Squares {
		canvas.Rect(int(s.X), int(s.Y), squareSize, squareSize,
			fmt.Sprintf("fill:%s", css(squareColor(s.Light))), fmt.Sprintf(`id="sq-%s"`, s.Coord.Square()))
	}
	for _, s := range l.Highlights {
		canvas.Rect(int(s.X), int(s.Y), squareSize, squareSize, fmt.Sprintf("fill:%s;fill-opacity:0.55", css(colorHighlight)))
	}

	label := fmt.Sprintf("fill:%s;font-size:12px;font-family:monospace;text-anchor:middle", css(colorSubtle))
	for i := 0; i < 8; i++ {
		canvas.Text(margin+i*squareSize+squareSize/2, headerH+2*margin+8*squareSize-8, l.Files[i], label)
		canvas.Text(margin/2, headerH+margin+i*squareSize+squareSize/2+4, l.Ranks[i], label)
	}

	for _, p := range l.Pieces {
		canvas.Text(int(p.CX), int(p.CY)+18, glyphs[p.Piece.Color][p.Piece.Kind],
			"font-size:52px;text-anchor:middle",
			fmt.Sprintf(`data-piece-id="%d"`, p.Piece.PieceID))
	}
	for _, a := range l.Arrows {
		sx, sy, hx1, hy1, hx2, hy2 := arrowHead(a)
		style := fmt.Sprintf("stroke:%s;stroke-width:%.0f;stroke-opacity:0.8", css(a.Color), arrowWidth(a.Kind))
		canvas.Line(int(a.X1), int(a.Y1), int(sx), int(sy), style, fmt.Sprintf(`class="arrow-%s"`, a.Kind))
		canvas.Polygon(
			[]int{int(a.X2), int(hx1), int(hx2)},
			[]int{int(a.Y2), int(hy1), int(hy2)},
			fmt.Sprintf("fill:%s;fill-opacity:0.8", css(a.Color)),
		)
	}

	canvas.End()
	return nil
}

// --- helpers ---------------------------------------------------------------

func squareColor(light bool) color.RGBA {
	if light {
		return colorLight
	}
	return colorDark
}

// parseHex reads "#rrggbb"; anything else renders in the stroke color.
func parseHex(s string) color.RGBA {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return colorStroke
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return colorStroke
	}
	return color.RGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 0xff}
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func css(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
