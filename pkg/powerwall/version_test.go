package powerwall

import (
	"errors"
	"testing"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input string
		want  Version
	}{
		{"1.46.0", Version{1, 46, 0}},
		{"21.44.1 c58c2df3", Version{21, 44, 1}},
		{"v1.50.1", Version{1, 50, 1}},
		{"1.49", Version{1, 49, 0}},
		{"2", Version{2, 0, 0}},
		{"1.46.0-rc1", Version{1, 46, 0}},
		{"1.46.0+build5", Version{1, 46, 0}},
		{"  23.12.10 ", Version{23, 12, 10}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseVersion(tt.input)
			if err != nil {
				t.Fatalf("ParseVersion(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseVersion(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseVersion_Invalid(t *testing.T) {
	for _, input := range []string{"", "   ", "abc", "1.x.0", "1..0", "-1.0.0"} {
		_, err := ParseVersion(input)
		if !IsInvalidVersion(err) {
			t.Errorf("ParseVersion(%q): expected invalid version error, got %v", input, err)
		}
	}
}

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.46.0", "1.46.0", 0},
		{"1.45.9", "1.46.0", -1},
		{"1.46.1", "1.46.0", 1},
		{"2.0.0", "1.99.99", 1},
		{"1.9.0", "1.10.0", -1},
	}

	for _, tt := range tests {
		got := MustParseVersion(tt.a).Compare(MustParseVersion(tt.b))
		if got != tt.want {
			t.Errorf("%s.Compare(%s) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestVersionString(t *testing.T) {
	if got := MustParseVersion("21.44.1 abc").String(); got != "21.44.1" {
		t.Errorf("String() = %q, want 21.44.1", got)
	}
}

func TestVersionGate_Pinned(t *testing.T) {
	tests := []struct {
		pin  string
		want GatePath
	}{
		{"1.46.0", PathLive},
		{"1.50.1", PathLive},
		{"1.45.9", PathLegacy},
		{"1.0.0", PathLegacy},
	}

	for _, tt := range tests {
		t.Run(tt.pin, func(t *testing.T) {
			var g VersionGate
			if err := g.Pin(tt.pin); err != nil {
				t.Fatalf("Pin(%q) error: %v", tt.pin, err)
			}

			called := false
			got, err := g.Resolve(DeviceTypeVersion, func() (Version, error) {
				called = true
				return Version{}, nil
			})
			if err != nil {
				t.Fatalf("Resolve error: %v", err)
			}
			if called {
				t.Error("probe must not be called when a version is pinned")
			}
			if got != tt.want {
				t.Errorf("Resolve = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVersionGate_ProbesEveryCallWhenUnpinned(t *testing.T) {
	var g VersionGate
	calls := 0
	probe := func() (Version, error) {
		calls++
		return Version{1, 46, 0}, nil
	}

	for i := 0; i < 3; i++ {
		path, err := g.Resolve(DeviceTypeVersion, probe)
		if err != nil {
			t.Fatalf("Resolve error: %v", err)
		}
		if path != PathLive {
			t.Errorf("Resolve = %v, want live", path)
		}
	}
	if calls != 3 {
		t.Errorf("probe called %d times, want 3", calls)
	}
}

func TestVersionGate_ProbeError(t *testing.T) {
	var g VersionGate
	probeErr := errors.New("boom")

	_, err := g.Resolve(DeviceTypeVersion, func() (Version, error) {
		return Version{}, probeErr
	})
	if !errors.Is(err, probeErr) {
		t.Errorf("Resolve error = %v, want %v", err, probeErr)
	}
}

func TestVersionGate_MalformedPinKeepsPrevious(t *testing.T) {
	var g VersionGate
	if err := g.Pin("1.46.0"); err != nil {
		t.Fatalf("Pin error: %v", err)
	}

	if err := g.Pin("not-a-version"); !IsInvalidVersion(err) {
		t.Fatalf("expected invalid version error, got %v", err)
	}

	v, ok := g.Pinned()
	if !ok || v != (Version{1, 46, 0}) {
		t.Errorf("Pinned() = %v, %v; want 1.46.0, true", v, ok)
	}
}

func TestVersionGate_ClearPin(t *testing.T) {
	var g VersionGate
	g.SetPin(Version{1, 46, 0})
	g.ClearPin()

	if _, ok := g.Pinned(); ok {
		t.Error("expected no pin after ClearPin")
	}

	calls := 0
	_, _ = g.Resolve(DeviceTypeVersion, func() (Version, error) {
		calls++
		return Version{1, 0, 0}, nil
	})
	if calls != 1 {
		t.Errorf("probe called %d times after ClearPin, want 1", calls)
	}
}
