package captcha

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"testing"
)

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestNumericAnswersItsOwnQuestion(t *testing.T) {
	g := NewNumeric(1, 9, testRand())

	for i := 0; i < 100; i++ {
		q, answer, err := g.Generate(context.Background())
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		var a, b int
		var op string
		if _, err := fmt.Sscanf(q, "%d %s %d = ?", &a, &op, &b); err != nil {
			t.Fatalf("unexpected question format %q: %v", q, err)
		}
		var want int
		switch op {
		case "+":
			want = a + b
		case "-":
			want = a - b
		case "*":
			want = a * b
		default:
			t.Fatalf("unexpected operator %q", op)
		}
		if answer != strconv.Itoa(want) {
			t.Fatalf("%q: answer %s, want %d", q, answer, want)
		}
		if want < 0 {
			t.Fatalf("%q: negative result", q)
		}
		if a < 1 || a > 9 || b < 1 || b > 9 {
			t.Fatalf("%q: operand out of range", q)
		}
	}
}

func TestNumericInvalidRangeFallsBack(t *testing.T) {
	g := NewNumeric(5, 5, testRand())
	if g.min != 1 || g.max != 10 {
		t.Fatalf("expected [1,10], got [%d,%d]", g.min, g.max)
	}
}

func TestBannerAnswerIsDigits(t *testing.T) {
	g := NewBanner(6, testRand())
	q, answer, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(answer) != 6 {
		t.Fatalf("expected 6 digits, got %q", answer)
	}
	if _, err := strconv.Atoi(answer); err != nil {
		t.Fatalf("expected numeric answer, got %q", answer)
	}
	if strings.Contains(q, answer) {
		t.Fatal("banner question must not contain the plain answer")
	}
	if rows := strings.Split(q, "\n"); len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}
}

func TestRenderBanner(t *testing.T) {
	got := RenderBanner([]int{1, 7})
	want := strings.Join([]string{
		" #   ###",
		"##     #",
		" #     #",
		" #    #",
		"###   #",
	}, "\n")
	if got != want {
		t.Fatalf("RenderBanner mismatch:\n%s\nwant:\n%s", got, want)
	}
}

func TestNewGenerator(t *testing.T) {
	if _, err := NewGenerator(GeneratorConfig{Kind: "recaptcha"}, nil); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if _, err := NewGenerator(GeneratorConfig{Kind: KindStatic, Question: "q"}, nil); !errors.Is(err, ErrIncompleteChallenge) {
		t.Fatalf("expected ErrIncompleteChallenge, got %v", err)
	}

	g, err := NewGenerator(GeneratorConfig{Kind: KindStatic, Question: "q", Answer: "a"}, nil)
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}
	q, a, _ := g.Generate(context.Background())
	if q != "q" || a != "a" {
		t.Fatalf("expected q/a, got %s/%s", q, a)
	}

	for _, kind := range []string{"", KindNumeric, KindBanner} {
		if _, err := NewGenerator(GeneratorConfig{Kind: kind}, nil); err != nil {
			t.Errorf("NewGenerator(%q) failed: %v", kind, err)
		}
	}
}
