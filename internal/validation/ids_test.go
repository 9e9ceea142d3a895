package validation

import (
	"strings"
	"testing"
)

func TestIsValidID(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{
			name:  "simple",
			id:    "alice",
			valid: true,
		},
		{
			name:  "uuid",
			id:    "0f8fad5b-d9cb-469f-a165-70867728950e",
			valid: true,
		},
		{
			name:  "telegram style",
			id:    "tg:123456789",
			valid: true,
		},
		{
			name:  "cyrillic",
			id:    "пользователь",
			valid: true,
		},
		{
			name:  "max length",
			id:    strings.Repeat("a", MaxIDLength),
			valid: true,
		},
		{
			name:  "empty",
			id:    "",
			valid: false,
		},
		{
			name:  "too long",
			id:    strings.Repeat("a", MaxIDLength+1),
			valid: false,
		},
		{
			name:  "contains space",
			id:    "alice smith",
			valid: false,
		},
		{
			name:  "control character",
			id:    "alice\n",
			valid: false,
		},
		{
			name:  "invalid utf-8",
			id:    "\xff",
			valid: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidID(tt.id); got != tt.valid {
				t.Fatalf("IsValidID(%q) = %v, want %v", tt.id, got, tt.valid)
			}
		})
	}
}
