package deal

import (
	"errors"
	"fmt"
)

// ErrInvalidMode is returned for a scoring mode outside all|cos|dot|pdist
var ErrInvalidMode = errors.New("deal: invalid mode")

// Mode selects how a scoring head compares two embeddings
type Mode int

const (
	// ModeAll combines an MLP with cosine, dot and distance features
	ModeAll Mode = iota
	// ModeCos scores by cosine similarity
	ModeCos
	// ModeDot scores by inner product
	ModeDot
	// ModePDist scores by euclidean distance
	ModePDist
)

var modeNames = map[Mode]string{
	ModeAll:   "all",
	ModeCos:   "cos",
	ModeDot:   "dot",
	ModePDist: "pdist",
}

// ParseMode converts a mode name into a Mode
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Valid reports whether m is one of the four modes
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}
