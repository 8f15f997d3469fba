package color

import (
	"fmt"
)

// Color names one of the two deployment slots.
type Color string

const (
	Blue  Color = "blue"
	Green Color = "green"
)

// Other returns the complementary slot.
func (c Color) Other() Color {
	if c == Blue {
		return Green
	}
	return Blue
}

func (c Color) Valid() bool {
	return c == Blue || c == Green
}

func (c Color) String() string {
	return string(c)
}

func Parse(s string) (Color, error) {
	c := Color(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown color %q; expected %q or %q", s, Blue, Green)
	}
	return c, nil
}

// DeploymentName is the name of the deployment running the given
// slot of app.
func DeploymentName(app string, c Color) string {
	return app + "-" + string(c)
}
