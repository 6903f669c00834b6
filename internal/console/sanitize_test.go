package console

import (
	"errors"
	"testing"
)

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"\x1b[32m[INFO]\x1b[0m Server started": "[INFO] Server started",
		"tab\tkept\r":                          "tab\tkept",
		"\x1b]0;title\x07prompt> ":             "prompt> ",
		"bell\x07 and \x00nul":                 "bell and nul",
		"":                                     "",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateCommand(t *testing.T) {
	if got, err := ValidateCommand("  say hello world "); err != nil || got != "say hello world" {
		t.Fatalf("ValidateCommand = %q, %v", got, err)
	}

	for _, bad := range []string{"", "   ", "stop\nop me", "\x1b[2Jclear", string(make([]byte, MaxCommandLength+1))} {
		if _, err := ValidateCommand(bad); !errors.Is(err, ErrInvalidCommand) {
			t.Errorf("ValidateCommand(%q) = %v, want ErrInvalidCommand", bad, err)
		}
	}
}
