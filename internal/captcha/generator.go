package captcha

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
)

// ErrIncompleteChallenge is returned when a generator produces a question
// without an answer or the other way round.
var ErrIncompleteChallenge = errors.New("generator returned an incomplete challenge")

// Generator produces a fresh question and its accepted answer. Both values
// are always returned together.
type Generator interface {
	Generate(ctx context.Context) (question, answer string, err error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context) (question, answer string, err error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context) (string, string, error) {
	return f(ctx)
}

// Challenge kinds understood by NewGenerator.
const (
	KindNumeric = "numeric"
	KindBanner  = "banner"
	KindStatic  = "static"
)

// GeneratorConfig selects and parameterizes a challenge kind.
type GeneratorConfig struct {
	Kind string `yaml:"kind"`

	// Min and Max bound numeric operands.
	Min int `yaml:"min"`
	Max int `yaml:"max"`

	// Length is the number of digits rendered by the banner kind.
	Length int `yaml:"length"`

	// Question and Answer are returned verbatim by the static kind.
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
}

// NewGenerator builds the generator for cfg.Kind. rnd may be nil, in which
// case a randomly seeded source is used.
func NewGenerator(cfg GeneratorConfig, rnd *rand.Rand) (Generator, error) {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	switch cfg.Kind {
	case KindNumeric, "":
		return NewNumeric(cfg.Min, cfg.Max, rnd), nil
	case KindBanner:
		return NewBanner(cfg.Length, rnd), nil
	case KindStatic:
		if cfg.Question == "" || cfg.Answer == "" {
			return nil, fmt.Errorf("static challenge: %w", ErrIncompleteChallenge)
		}
		return Static(cfg.Question, cfg.Answer), nil
	default:
		return nil, fmt.Errorf("unknown challenge kind %q", cfg.Kind)
	}
}

// Static returns a generator that always produces the same challenge.
func Static(question, answer string) Generator {
	return GeneratorFunc(func(context.Context) (string, string, error) {
		return question, answer, nil
	})
}

// Numeric asks simple arithmetic questions such as "7 + 3 = ?".
type Numeric struct {
	min, max int

	mu  sync.Mutex // rand.Rand is not safe for concurrent use
	rnd *rand.Rand
}

// NewNumeric creates a numeric generator with operands in [lo, hi].
// An empty or inverted range falls back to [1, 10].
func NewNumeric(lo, hi int, rnd *rand.Rand) *Numeric {
	if hi <= lo {
		lo, hi = 1, 10
	}
	return &Numeric{min: lo, max: hi, rnd: rnd}
}

func (n *Numeric) operand() int {
	return n.min + n.rnd.IntN(n.max-n.min+1)
}

// Generate implements Generator.
func (n *Numeric) Generate(_ context.Context) (string, string, error) {
	n.mu.Lock()
	a, b := n.operand(), n.operand()
	kind := n.rnd.IntN(3)
	n.mu.Unlock()

	var op string
	var result int
	switch kind {
	case 0:
		op, result = "+", a+b
	case 1:
		// keep results non-negative
		if b > a {
			a, b = b, a
		}
		op, result = "-", a-b
	default:
		op, result = "*", a*b
	}

	return fmt.Sprintf("%d %s %d = ?", a, op, b), strconv.Itoa(result), nil
}

// bannerFont is a 5-row block font for digits.
var bannerFont = [10][5]string{
	{"###", "# #", "# #", "# #", "###"},
	{" # ", "## ", " # ", " # ", "###"},
	{"###", "  #", "###", "#  ", "###"},
	{"###", "  #", " ##", "  #", "###"},
	{"# #", "# #", "###", "  #", "  #"},
	{"###", "#  ", "###", "  #", "###"},
	{"###", "#  ", "###", "# #", "###"},
	{"###", "  #", "  #", " # ", " # "},
	{"###", "# #", "###", "# #", "###"},
	{"###", "# #", "###", "  #", "###"},
}

// Banner renders a random digit string as ASCII art. The answer is the
// digit string itself.
type Banner struct {
	length int

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewBanner creates a banner generator producing length digits (default 5).
func NewBanner(length int, rnd *rand.Rand) *Banner {
	if length <= 0 {
		length = 5
	}
	return &Banner{length: length, rnd: rnd}
}

// Generate implements Generator.
func (g *Banner) Generate(_ context.Context) (string, string, error) {
	digits := make([]int, g.length)
	g.mu.Lock()
	for i := range digits {
		digits[i] = g.rnd.IntN(10)
	}
	g.mu.Unlock()

	var answer strings.Builder
	for _, d := range digits {
		answer.WriteByte(byte('0' + d))
	}
	return RenderBanner(digits), answer.String(), nil
}

// RenderBanner draws digits with the banner font, one text row per line.
func RenderBanner(digits []int) string {
	rows := make([]string, len(bannerFont[0]))
	for r := range rows {
		glyphs := make([]string, len(digits))
		for i, d := range digits {
			glyphs[i] = bannerFont[d][r]
		}
		rows[r] = strings.TrimRight(strings.Join(glyphs, "  "), " ")
	}
	return strings.Join(rows, "\n")
}
