package domain

import "testing"

func TestNormalizeUsername(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "trim spaces", input: "  alice  ", want: "alice"},
		{name: "lowercase", input: "Alice", want: "alice"},
		{name: "mixed case with digits", input: "BoardGamer42", want: "boardgamer42"},
		{name: "underscores preserved", input: "board_gamer", want: "board_gamer"},
		{name: "empty string", input: "", want: ""},
		{name: "only spaces", input: "   ", want: ""},
		{name: "tabs and spaces", input: "\t alice \t", want: "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeUsername(tt.input); got != tt.want {
				t.Errorf("NormalizeUsername(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
