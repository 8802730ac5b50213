package scratch

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ============================================================
// Geometry primitives
// ============================================================

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Finite reports whether both coordinates are real numbers.
func (p Point) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

func (p Point) Distance(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

type Segment struct {
	From Point `json:"from"`
	To   Point `json:"to"`
}

func (s Segment) Length() float64 {
	return s.From.Distance(s.To)
}

// ============================================================
// Stroke Path
// ============================================================

type Op int

const (
	OpMoveTo Op = iota
	OpLineTo
)

type Command struct {
	Op    Op
	Point Point
}

// Path is an ordered list of subpaths. Each subpath starts with a MoveTo
// followed by zero or more LineTo commands.
type Path struct {
	cmds []Command
}

func (p *Path) MoveTo(pt Point) {
	p.cmds = append(p.cmds, Command{Op: OpMoveTo, Point: pt})
}

// LineTo appends a segment from the current point. Without a current point
// it starts a subpath instead.
func (p *Path) LineTo(pt Point) {
	if len(p.cmds) == 0 {
		p.MoveTo(pt)
		return
	}
	p.cmds = append(p.cmds, Command{Op: OpLineTo, Point: pt})
}

func (p Path) Commands() []Command {
	out := make([]Command, len(p.cmds))
	copy(out, p.cmds)
	return out
}

func (p Path) Len() int {
	return len(p.cmds)
}

func (p Path) Empty() bool {
	return len(p.cmds) == 0
}

// Clone returns a deep copy safe to hand to another goroutine.
func (p Path) Clone() Path {
	return Path{cmds: p.Commands()}
}

// Segments flattens the path into line segments.
func (p Path) Segments() []Segment {
	var out []Segment
	var cur Point
	for _, c := range p.cmds {
		if c.Op == OpLineTo {
			out = append(out, Segment{From: cur, To: c.Point})
		}
		cur = c.Point
	}
	return out
}

// Subpaths groups points by subpath, in drawing order.
func (p Path) Subpaths() [][]Point {
	var out [][]Point
	for _, c := range p.cmds {
		if c.Op == OpMoveTo || len(out) == 0 {
			out = append(out, []Point{c.Point})
			continue
		}
		last := len(out) - 1
		out[last] = append(out[last], c.Point)
	}
	return out
}

// String encodes the path as SVG path data: "M0 0 L10 0 L20 5".
func (p Path) String() string {
	var b strings.Builder
	for i, c := range p.cmds {
		switch c.Op {
		case OpMoveTo:
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString("M")
		case OpLineTo:
			b.WriteString(" L")
		}
		b.WriteString(formatFloat(c.Point.X))
		b.WriteString(" ")
		b.WriteString(formatFloat(c.Point.Y))
	}
	return b.String()
}

// ============================================================
// Path Parser
// ============================================================

var numberRe = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

type pathCommand struct {
	cmd    string
	coords []float64
}

// scanPath splits path data into commands and their arguments. Numbers may
// run together the way SVG allows, so "M0-5" is M 0 -5 and "M.5.5" is M .5 .5.
func scanPath(d string) ([]pathCommand, error) {
	var out []pathCommand
	for i := 0; i < len(d); {
		ch := d[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == ',':
			i++

		case strings.IndexByte("MmLlHhVvZz", ch) >= 0:
			if len(out) == 0 && ch != 'M' && ch != 'm' {
				return nil, fmt.Errorf("path must start with a moveto, got %q", ch)
			}
			out = append(out, pathCommand{cmd: string(ch)})
			i++

		default:
			num := numberRe.FindString(d[i:])
			if num == "" {
				return nil, fmt.Errorf("unexpected %q at offset %d", ch, i)
			}
			if len(out) == 0 {
				return nil, fmt.Errorf("number %q before the first command", num)
			}
			val, err := strconv.ParseFloat(num, 64)
			if err != nil || math.IsInf(val, 0) {
				return nil, fmt.Errorf("bad number %q", num)
			}
			last := &out[len(out)-1]
			last.coords = append(last.coords, val)
			i += len(num)
		}
	}
	return out, nil
}

// ParsePath decodes SVG path data made of M, m, L, l, H, h, V, v and Z commands.
// Extra coordinate pairs after M/L are treated as implicit LineTo.
func ParsePath(d string) (Path, error) {
	if strings.TrimSpace(d) == "" {
		return Path{}, fmt.Errorf("empty path")
	}

	commands, err := scanPath(d)
	if err != nil {
		return Path{}, err
	}

	var path Path
	var cur, start Point

	for _, c := range commands {
		cmd, coords := c.cmd, c.coords

		switch cmd {
		case "M", "m", "L", "l":
			if len(coords) < 2 || len(coords)%2 != 0 {
				return Path{}, fmt.Errorf("command %s: want coordinate pairs, got %d values", cmd, len(coords))
			}
			relative := cmd == "m" || cmd == "l"
			for i := 0; i < len(coords); i += 2 {
				next := Point{X: coords[i], Y: coords[i+1]}
				if relative {
					next = Point{X: cur.X + next.X, Y: cur.Y + next.Y}
				}
				if i == 0 && (cmd == "M" || cmd == "m") {
					path.MoveTo(next)
					start = next
				} else {
					path.LineTo(next)
				}
				cur = next
			}

		case "H", "h":
			if len(coords) == 0 {
				return Path{}, fmt.Errorf("command %s: missing coordinate", cmd)
			}
			for _, x := range coords {
				if cmd == "h" {
					x += cur.X
				}
				cur = Point{X: x, Y: cur.Y}
				path.LineTo(cur)
			}

		case "V", "v":
			if len(coords) == 0 {
				return Path{}, fmt.Errorf("command %s: missing coordinate", cmd)
			}
			for _, y := range coords {
				if cmd == "v" {
					y += cur.Y
				}
				cur = Point{X: cur.X, Y: y}
				path.LineTo(cur)
			}

		case "Z", "z":
			if len(coords) > 0 {
				return Path{}, fmt.Errorf("command %s takes no coordinates", cmd)
			}
			// Close back to the subpath start.
			path.LineTo(start)
			cur = start
		}
	}

	return path, nil
}

func formatFloat(val float64) string {
	return strconv.FormatFloat(val, 'f', -1, 64)
}
