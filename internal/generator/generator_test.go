package generator

import (
	"strings"
	"testing"
)

func TestSequenceLength(t *testing.T) {
	g := NewSeeded(1)
	for _, length := range []int{0, 1, 200} {
		if got := g.Sequence(length); len(got) != length {
			t.Errorf("Sequence(%d) returned %d characters", length, len(got))
		}
	}
}

func TestSequenceAlphabet(t *testing.T) {
	g := NewSeeded(42)
	seq := g.Sequence(500)
	for i, r := range seq {
		if !strings.ContainsRune(alphabet, r) {
			t.Fatalf("Character %q at position %d is outside the alphabet", r, i)
		}
	}
}

func TestSequenceVaries(t *testing.T) {
	g := NewSeeded(7)
	if g.Sequence(200) == g.Sequence(200) {
		t.Error("Two consecutive 200-key sequences were identical")
	}
}
