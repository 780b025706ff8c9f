package types

// Box is an axis-aligned bounding box in pixel coordinates.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float64 {
	return b.X2 - b.X1
}

// Height returns the vertical extent of the box.
func (b Box) Height() float64 {
	return b.Y2 - b.Y1
}

// Translate shifts the box by (dx, dy).
func (b Box) Translate(dx, dy float64) Box {
	return Box{X1: b.X1 + dx, Y1: b.Y1 + dy, X2: b.X2 + dx, Y2: b.Y2 + dy}
}

// Scale multiplies the box coordinates by (sx, sy).
func (b Box) Scale(sx, sy float64) Box {
	return Box{X1: b.X1 * sx, Y1: b.Y1 * sy, X2: b.X2 * sx, Y2: b.Y2 * sy}
}

// Point is a single polygon vertex in pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polygon is a mask outline produced by segmentation models.
type Polygon []Point

// Translate shifts every vertex by (dx, dy).
func (p Polygon) Translate(dx, dy float64) Polygon {
	if p == nil {
		return nil
	}
	out := make(Polygon, len(p))
	for i, pt := range p {
		out[i] = Point{X: pt.X + dx, Y: pt.Y + dy}
	}
	return out
}

// Scale multiplies every vertex by (sx, sy).
func (p Polygon) Scale(sx, sy float64) Polygon {
	if p == nil {
		return nil
	}
	out := make(Polygon, len(p))
	for i, pt := range p {
		out[i] = Point{X: pt.X * sx, Y: pt.Y * sy}
	}
	return out
}

// Detection is a single object reported by a detector. Detectors return
// crop-local coordinates; the inference runner remaps them into canvas or
// source coordinates.
type Detection struct {
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name,omitempty"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	Mask       Polygon `json:"mask,omitempty"`
}

// Translate shifts the detection geometry by (dx, dy).
func (d Detection) Translate(dx, dy float64) Detection {
	d.Box = d.Box.Translate(dx, dy)
	d.Mask = d.Mask.Translate(dx, dy)
	return d
}

// Scale multiplies the detection geometry by (sx, sy).
func (d Detection) Scale(sx, sy float64) Detection {
	d.Box = d.Box.Scale(sx, sy)
	d.Mask = d.Mask.Scale(sx, sy)
	return d
}
