package world

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Shape: форма вокселя. Один байт на воксель.
type Shape uint8

const (
	ShapeEmpty Shape = iota
	ShapeFloor
	ShapeSolid
	// ShapeRampE поднимается в сторону +X.
	ShapeRampE
	// Зарезервированы под остальные повороты рампы. Солвер их пока не поддерживает
	// и считает стеной.
	ShapeRampW
	ShapeRampS
	ShapeRampN

	shapeCount
)

var shapeNames = [shapeCount]string{
	ShapeEmpty: "empty",
	ShapeFloor: "floor",
	ShapeSolid: "solid",
	ShapeRampE: "ramp_e",
	ShapeRampW: "ramp_w",
	ShapeRampS: "ramp_s",
	ShapeRampN: "ramp_n",
}

func (s Shape) String() string {
	if s < shapeCount {
		return shapeNames[s]
	}
	return fmt.Sprintf("shape(%d)", uint8(s))
}

// IsRamp сообщает, что форма является рампой любой ориентации
func (s Shape) IsRamp() bool {
	return s >= ShapeRampE && s <= ShapeRampN
}

// Valid сообщает, что значение входит в известный набор форм
func (s Shape) Valid() bool {
	return s < shapeCount
}

// ParseShape разбирает имя формы из таблиц ассетов.
func ParseShape(name string) (Shape, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range shapeNames {
		if n == name {
			return Shape(i), nil
		}
	}
	return ShapeEmpty, fmt.Errorf("unknown shape %q", name)
}

// MarshalYAML/UnmarshalYAML позволяют писать формы в конфиге по имени.
func (s Shape) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

func (s *Shape) UnmarshalYAML(node *yaml.Node) error {
	var name string
	if err := node.Decode(&name); err != nil {
		return err
	}
	parsed, err := ParseShape(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
