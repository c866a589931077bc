package middleware

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestValidateEmail(t *testing.T) {
	valid := []string{"a@b.co", "user+tag@example.com"}
	for _, email := range valid {
		if err := ValidateEmail(email); err != nil {
			t.Errorf("ValidateEmail(%q) = %v, want nil", email, err)
		}
	}

	invalid := []string{"", "no-at-sign", "@example.com", "trailing@", strings.Repeat("a", 250) + "@x.co"}
	for _, email := range invalid {
		if err := ValidateEmail(email); err == nil {
			t.Errorf("ValidateEmail(%q) = nil, want error", email)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("12345678"); err != nil {
		t.Errorf("8-char password rejected: %v", err)
	}
	if err := ValidatePassword("short"); err == nil {
		t.Error("short password accepted")
	}
	if err := ValidatePassword(strings.Repeat("x", 257)); err == nil {
		t.Error("oversized password accepted")
	}
}

func TestValidateMessageContent(t *testing.T) {
	if err := ValidateMessageContent("explain goroutines"); err != nil {
		t.Errorf("valid content rejected: %v", err)
	}
	for _, content := range []string{"", "   ", "\n"} {
		if err := ValidateMessageContent(content); err == nil {
			t.Errorf("blank content %q accepted", content)
		}
	}
	if err := ValidateMessageContent(strings.Repeat("x", 100001)); err == nil {
		t.Error("oversized content accepted")
	}
	if err := ValidateMessageContent(string([]byte{0xff, 0xfe})); err == nil {
		t.Error("invalid UTF-8 accepted")
	}
}

func TestValidateConversationID(t *testing.T) {
	want := uuid.New()
	got, err := ValidateConversationID(want.String())
	if err != nil || got != want {
		t.Errorf("ValidateConversationID(%q) = %v, %v", want, got, err)
	}

	if _, err := ValidateConversationID("not-a-uuid"); err == nil {
		t.Error("malformed id accepted")
	}
}
