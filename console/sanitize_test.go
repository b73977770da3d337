package console

import "testing"

func TestSanitizeStripsEscapeSequences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"color", "\x1b[31mred\x1b[0m", "red"},
		{"cursor", "\x1b[2Jtop\x1b[1;1H", "top"},
		{"osc title", "\x1b]0;title\x07body", "body"},
		{"crlf", "one\r\ntwo", "one\ntwo"},
		{"lone cr", "25%\r50%\r100%", "25%\n50%\n100%"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Sanitize(tc.in); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"plain text",
		"\x1b[1;32mbold green\x1b[0m and \x1b[4munderline\x1b[24m",
		"progress\rdone\r\n",
		"\x1b]2;window\x07\x1b[10;20Hmoved",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		twice := Sanitize(once)
		if once != twice {
			t.Fatalf("expected sanitize to be idempotent for %q: %q != %q", in, once, twice)
		}
	}
}
