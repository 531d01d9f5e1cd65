package curve

import (
	"fmt"
	"math"
)

// Point is a single breakpoint of a loading curve: the maximum power in kW
// achievable at a given state of charge.
type Point struct {
	SoC     float64 `json:"soc"`
	PowerKW float64 `json:"power_kw"`
}

// Curve is an immutable piecewise-linear power(soc) function defined on the
// full [0,1] soc range. Operations that change the shape return a new curve.
type Curve struct {
	points []Point
}

// New validates the breakpoints and builds a curve. The soc values must be
// strictly ascending, start at 0 and end at 1, and all powers must be
// non-negative.
func New(points []Point) (*Curve, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("curve needs at least two points, got %d", len(points))
	}
	if points[0].SoC != 0 {
		return nil, fmt.Errorf("curve must start at soc 0, got %g", points[0].SoC)
	}
	if points[len(points)-1].SoC != 1 {
		return nil, fmt.Errorf("curve must end at soc 1, got %g", points[len(points)-1].SoC)
	}
	for i, p := range points {
		if p.PowerKW < 0 {
			return nil, fmt.Errorf("curve power at soc %g is negative", p.SoC)
		}
		if i > 0 && p.SoC <= points[i-1].SoC {
			return nil, fmt.Errorf("curve soc values must be strictly ascending at index %d", i)
		}
	}
	cp := make([]Point, len(points))
	copy(cp, points)
	return &Curve{points: cp}, nil
}

// MustNew builds a curve and panics on invalid breakpoints. Intended for
// constants and tests.
func MustNew(points []Point) *Curve {
	c, err := New(points)
	if err != nil {
		panic(err)
	}
	return c
}

// Constant returns a flat curve with the given power over the whole range.
func Constant(powerKW float64) *Curve {
	return MustNew([]Point{{SoC: 0, PowerKW: powerKW}, {SoC: 1, PowerKW: powerKW}})
}

// Points returns a copy of the breakpoints.
func (c *Curve) Points() []Point {
	cp := make([]Point, len(c.points))
	copy(cp, c.points)
	return cp
}

// MaxPower returns the highest power over the whole curve.
func (c *Curve) MaxPower() float64 {
	max := 0.0
	for _, p := range c.points {
		if p.PowerKW > max {
			max = p.PowerKW
		}
	}
	return max
}

// PowerAt interpolates the curve at the given soc. It returns an error if soc
// is outside [0,1].
func (c *Curve) PowerAt(soc float64) (float64, error) {
	if soc < 0 || soc > 1 {
		return 0, fmt.Errorf("soc %g outside [0,1]", soc)
	}
	for i := 1; i < len(c.points); i++ {
		a, b := c.points[i-1], c.points[i]
		if soc > b.SoC {
			continue
		}
		t := (soc - a.SoC) / (b.SoC - a.SoC)
		return a.PowerKW + t*(b.PowerKW-a.PowerKW), nil
	}
	// soc == 1 handled by the loop; unreachable for valid curves.
	return c.points[len(c.points)-1].PowerKW, nil
}

// Clamped returns a new curve equal to min(c, ceiling) pointwise. Exact
// intersection points are inserted wherever the original crosses the ceiling
// so the result stays piecewise-linear without losing shape information.
func (c *Curve) Clamped(ceiling float64) *Curve {
	if ceiling < 0 {
		ceiling = 0
	}
	out := make([]Point, 0, len(c.points)+2)
	push := func(p Point) {
		if n := len(out); n > 0 && out[n-1].SoC == p.SoC {
			return
		}
		out = append(out, p)
	}
	for i := 1; i < len(c.points); i++ {
		a, b := c.points[i-1], c.points[i]
		switch {
		case a.PowerKW <= ceiling && b.PowerKW <= ceiling:
			push(a)
			push(b)
		case a.PowerKW >= ceiling && b.PowerKW >= ceiling:
			push(Point{SoC: a.SoC, PowerKW: ceiling})
			push(Point{SoC: b.SoC, PowerKW: ceiling})
		default:
			// Segment crosses the ceiling: solve the linear intersection.
			t := (ceiling - a.PowerKW) / (b.PowerKW - a.PowerKW)
			x := a.SoC + t*(b.SoC-a.SoC)
			if a.PowerKW < ceiling {
				push(a)
				push(Point{SoC: x, PowerKW: ceiling})
				push(Point{SoC: b.SoC, PowerKW: ceiling})
			} else {
				push(Point{SoC: a.SoC, PowerKW: ceiling})
				push(Point{SoC: x, PowerKW: ceiling})
				push(b)
			}
		}
	}
	return &Curve{points: out}
}

// Scaled returns a new curve with all powers multiplied by factor. It is used
// to express efficiency losses as an equivalent curve.
func (c *Curve) Scaled(factor float64) *Curve {
	out := make([]Point, len(c.points))
	for i, p := range c.points {
		out[i] = Point{SoC: p.SoC, PowerKW: p.PowerKW * factor}
	}
	return &Curve{points: out}
}

// Equal reports whether two curves share identical breakpoints within eps.
func (c *Curve) Equal(other *Curve, eps float64) bool {
	if len(c.points) != len(other.points) {
		return false
	}
	for i := range c.points {
		if math.Abs(c.points[i].SoC-other.points[i].SoC) > eps ||
			math.Abs(c.points[i].PowerKW-other.points[i].PowerKW) > eps {
			return false
		}
	}
	return true
}
