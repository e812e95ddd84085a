// Package eyes turns noisy blend-shape intensities into debounced gaze and
// eyelid symbols.
//
// Gaze uses dual-threshold hysteresis: a direction is entered above
// GazeEnter and only abandoned once its signal falls below GazeExit. The
// eyelid walks a ladder (closed, half closed, open, wide) at most one rung
// per update, with separate thresholds for each direction of travel.
//
// Transitions are driven by signal values only; nothing here is time based.
package eyes

import "fmt"

// Gaze thresholds.
const (
	GazeEnter = 0.15 // a direction becomes active above this
	GazeExit  = 0.05 // an active direction is released below this
)

// Eyelid thresholds, named after the rung they move towards.
const (
	BlinkHalfOpen  = 0.5  // closed → halfClosed when blink < this
	BlinkReopen    = 0.1  // halfClosed → open when blink < this
	WideEnter      = 0.15 // open → wide when wide > this
	WideExit       = 0.1  // wide → open when wide < this
	BlinkHalfClose = 0.2  // open → halfClosed when blink > this
	BlinkClose     = 0.75 // halfClosed → closed when blink > this
)

// Position is the gaze direction of one eye.
type Position int

const (
	Neutral Position = iota
	Up
	Down
	Left
	Right
)

var positionNames = [...]string{"neutral", "up", "down", "left", "right"}

func (p Position) String() string {
	if p < 0 || int(p) >= len(positionNames) {
		return fmt.Sprintf("Position(%d)", int(p))
	}
	return positionNames[p]
}

// MarshalText implements encoding.TextMarshaler.
func (p Position) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Position) UnmarshalText(text []byte) error {
	for i, name := range positionNames {
		if name == string(text) {
			*p = Position(i)
			return nil
		}
	}
	return fmt.Errorf("eyes: unknown position %q", text)
}

// Shape is the eyelid aperture of one eye.
type Shape int

const (
	Open Shape = iota
	HalfClosed
	Closed
	Wide
)

var shapeNames = [...]string{"open", "halfClosed", "closed", "wide"}

func (s Shape) String() string {
	if s < 0 || int(s) >= len(shapeNames) {
		return fmt.Sprintf("Shape(%d)", int(s))
	}
	return shapeNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Shape) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Shape) UnmarshalText(text []byte) error {
	for i, name := range shapeNames {
		if name == string(text) {
			*s = Shape(i)
			return nil
		}
	}
	return fmt.Errorf("eyes: unknown shape %q", text)
}

// State is the symbolic state of one eye.
type State struct {
	Position Position `json:"position"`
	Shape    Shape    `json:"shape"`
}

// InitialState is the state of an eye on its first observation.
func InitialState() State {
	return State{Position: Neutral, Shape: Open}
}

func (s State) String() string {
	return s.Position.String() + "/" + s.Shape.String()
}

// Gaze holds the four directional look signals of one eye.
type Gaze struct {
	Up, Down, Left, Right float32
}

// Lid holds the aperture signals of one eye.
type Lid struct {
	Blink, Wide float32
}

// NextPosition returns the gaze direction following prev given the current
// signals. A held direction sticks until its own signal drops below
// GazeExit; from neutral, up, down, left and right are tried in that order
// against GazeEnter.
func NextPosition(prev Position, g Gaze) Position {
	if prev != Neutral {
		if g.signal(prev) >= GazeExit {
			return prev
		}
	}

	switch {
	case g.Up > GazeEnter:
		return Up
	case g.Down > GazeEnter:
		return Down
	case g.Left > GazeEnter:
		return Left
	case g.Right > GazeEnter:
		return Right
	}
	return Neutral
}

func (g Gaze) signal(p Position) float32 {
	switch p {
	case Up:
		return g.Up
	case Down:
		return g.Down
	case Left:
		return g.Left
	case Right:
		return g.Right
	}
	return 0
}

// NextShape moves the eyelid at most one rung from prev.
func NextShape(prev Shape, l Lid) Shape {
	switch prev {
	case Closed:
		if l.Blink < BlinkHalfOpen {
			return HalfClosed
		}
	case HalfClosed:
		if l.Blink < BlinkReopen {
			return Open
		}
		if l.Blink > BlinkClose {
			return Closed
		}
	case Open:
		if l.Wide > WideEnter {
			return Wide
		}
		if l.Blink > BlinkHalfClose {
			return HalfClosed
		}
	case Wide:
		if l.Wide < WideExit {
			return Open
		}
	}
	return prev
}
