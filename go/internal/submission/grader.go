package submission

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/mcdev12/arena/go/internal/models"
)

// Grader scores a committed answer. It is invoked at most once per session.
type Grader interface {
	Grade(ctx context.Context, s models.Session, answer models.Answer) (int, error)
}

// RandomGrader assigns a uniform score in [0, Max]. It stands in until a
// real grading service exists.
type RandomGrader struct {
	Max  int
	intn func(n int) int
}

func NewRandomGrader(maxScore int) *RandomGrader {
	return &RandomGrader{Max: maxScore, intn: rand.IntN}
}

func (g *RandomGrader) Grade(_ context.Context, _ models.Session, _ models.Answer) (int, error) {
	if g.Max < 0 {
		return 0, fmt.Errorf("random grader max must not be negative")
	}
	return g.intn(g.Max + 1), nil
}

// FixedGrader always returns Score.
type FixedGrader struct {
	Score int
}

func (g FixedGrader) Grade(_ context.Context, _ models.Session, _ models.Answer) (int, error) {
	return g.Score, nil
}

// NewGrader builds a grader by name: "random" or "fixed".
func NewGrader(name string, fixedScore, randomMax int) (Grader, error) {
	switch name {
	case "", "random":
		return NewRandomGrader(randomMax), nil
	case "fixed":
		return FixedGrader{Score: fixedScore}, nil
	default:
		return nil, fmt.Errorf("unknown grader %q", name)
	}
}
