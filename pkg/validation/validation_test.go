package validation

import (
	"strings"
	"testing"
)

func TestValidateDisplayName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "Alice", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"unicode", "Алиса", false},
		{"too long", strings.Repeat("a", 65), true},
		{"max length", strings.Repeat("a", 64), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDisplayName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDisplayName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateMeetingCode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "X1Y2Z3", false},
		{"lowercase accepted", "x1y2z3", false},
		{"empty", "", true},
		{"too short", "AB", true},
		{"punctuation", "AB-CD!", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMeetingCode(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMeetingCode(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePeerID(t *testing.T) {
	if err := ValidatePeerID("peer-a1b2c3d4"); err != nil {
		t.Errorf("valid peer id rejected: %v", err)
	}
	if err := ValidatePeerID(""); err == nil {
		t.Error("empty peer id accepted")
	}
	if err := ValidatePeerID("peer with spaces"); err == nil {
		t.Error("peer id with spaces accepted")
	}
}

func TestValidateAvatarRef(t *testing.T) {
	if err := ValidateAvatarRef(""); err != nil {
		t.Errorf("empty avatar ref should be allowed: %v", err)
	}
	if err := ValidateAvatarRef("https://example.com/a.png"); err != nil {
		t.Errorf("https avatar ref rejected: %v", err)
	}
	if err := ValidateAvatarRef("ftp://example.com/a.png"); err == nil {
		t.Error("ftp avatar ref accepted")
	}
}

func TestValidateChatText(t *testing.T) {
	if err := ValidateChatText("hello"); err != nil {
		t.Errorf("valid text rejected: %v", err)
	}
	if err := ValidateChatText("  "); err == nil {
		t.Error("blank text accepted")
	}
	if err := ValidateChatText(strings.Repeat("x", 4001)); err == nil {
		t.Error("oversized text accepted")
	}
}
