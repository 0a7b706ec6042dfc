package identity

import (
	"testing"
)

func TestHash53KnownValues(t *testing.T) {
	tests := []struct {
		input string
		want  uint64
	}{
		{"a", 7929297801672961},
		{"b", 8684336938537663},
		{"revenge", 4051478007546757},
		{"", 3338908027751811},
		{"😀", 4725715722941614},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Hash53(tt.input); got != tt.want {
				t.Errorf("Hash53(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestSeed(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a := Seed("Sara", "long black hair, green eyes")
		b := Seed("Sara", "long black hair, green eyes")
		if a != b {
			t.Errorf("seed not stable: %d != %d", a, b)
		}
	})

	t.Run("name is case and space insensitive", func(t *testing.T) {
		if Seed("Maya", "x") != Seed("maya ", "x") {
			t.Error("expected Seed(Maya) == Seed(maya )")
		}
		if got, want := Seed("Maya", "x"), uint64(6144902096154721); got != want {
			t.Errorf("Seed(Maya, x) = %d, want %d", got, want)
		}
	})

	t.Run("attributes change the seed", func(t *testing.T) {
		if Seed("Maya", "x") == Seed("Maya", "y") {
			t.Error("different attributes produced the same seed")
		}
	})

	t.Run("within 53 bits", func(t *testing.T) {
		for _, name := range []string{"", "Arjun", "Ravi Kumar", "名前"} {
			if s := Seed(name, "attrs"); s >= MaxSeed {
				t.Errorf("Seed(%q) = %d exceeds 2^53", name, s)
			}
		}
	})
}
