package game

import (
	"encoding/json"
	"fmt"
	"math"
)

// Vec2 is a 2D float32 vector, matching the wire format's [x, y] pairs.
type Vec2 struct {
	X float32
	Y float32
}

func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{X: v.X - o.X, Y: v.Y - o.Y}
}

func (v Vec2) Scale(k float32) Vec2 {
	return Vec2{X: v.X * k, Y: v.Y * k}
}

func (v Vec2) Length() float32 {
	return float32(math.Sqrt(float64(v.X*v.X + v.Y*v.Y)))
}

// Normalized returns the unit vector for v, or the zero vector if v is zero-length.
func (v Vec2) Normalized() Vec2 {
	l := v.Length()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{X: v.X / l, Y: v.Y / l}
}

func (v Vec2) IsZero() bool {
	return v.X == 0 && v.Y == 0
}

// Distance is the Euclidean distance between two positions.
func Distance(a, b Vec2) float32 {
	return b.Sub(a).Length()
}

// MarshalJSON encodes a Vec2 as the two-element [x, y] array the wire protocol uses.
func (v Vec2) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float32{v.X, v.Y})
}

// UnmarshalJSON decodes a [x, y] array into a Vec2.
func (v *Vec2) UnmarshalJSON(data []byte) error {
	var pair [2]float32
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("vec2: %w", err)
	}
	v.X, v.Y = pair[0], pair[1]
	return nil
}
