package cmd

import "testing"

func TestIsValidConfigKey(t *testing.T) {
	for _, key := range validConfigKeys {
		if !isValidConfigKey(key) {
			t.Errorf("%s should be valid", key)
		}
	}
	for _, key := range []string{"", "bogus", "engine", "server.password"} {
		if isValidConfigKey(key) {
			t.Errorf("%s should be invalid", key)
		}
	}
}

func TestParseBoolValue(t *testing.T) {
	for _, s := range []string{"true", "TRUE", "1"} {
		got, err := parseBoolValue(s)
		if err != nil || !got {
			t.Errorf("parseBoolValue(%q) = %v, %v", s, got, err)
		}
	}
	for _, s := range []string{"false", "False", "0"} {
		got, err := parseBoolValue(s)
		if err != nil || got {
			t.Errorf("parseBoolValue(%q) = %v, %v", s, got, err)
		}
	}
	if _, err := parseBoolValue("yes"); err == nil {
		t.Error("expected error for yes")
	}
}

func TestMaskKey(t *testing.T) {
	if got := maskKey(""); got != "(unset)" {
		t.Errorf("empty: got %q", got)
	}
	if got := maskKey("short"); got != "****" {
		t.Errorf("short: got %q", got)
	}
	got := maskKey("ff_1234567890abcdef")
	if got != "ff_1...cdef" {
		t.Errorf("long: got %q", got)
	}
}
