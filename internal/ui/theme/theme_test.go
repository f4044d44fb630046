package theme

import "testing"

func TestGetTheme(t *testing.T) {
	tests := map[string]string{
		"":                 "default",
		"default":          "default",
		"catppuccin":       "catppuccin-mocha",
		"catppuccin-mocha": "catppuccin-mocha",
		"solarized":        "default",
	}
	for name, want := range tests {
		if got := GetTheme(name).Name; got != want {
			t.Errorf("GetTheme(%q) = %q, want %q", name, got, want)
		}
	}
}
