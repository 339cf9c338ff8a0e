package timeouts

import (
	"testing"
	"time"
)

func TestConfigureKeepsZeroFields(t *testing.T) {
	t.Cleanup(Reset)

	Configure(Config{Short: 7 * time.Second})
	if got := Short(); got != 7*time.Second {
		t.Errorf("Short() = %v, want 7s", got)
	}
	if got := Medium(); got != DefaultMedium {
		t.Errorf("Medium() = %v, want default %v", got, DefaultMedium)
	}
}

func TestConfigureFromEnv(t *testing.T) {
	t.Cleanup(Reset)
	t.Setenv("PEERFINDER_TIMEOUT_PING", "500ms")
	t.Setenv("PEERFINDER_TIMEOUT_LONG", "not-a-duration")

	if n := ConfigureFromEnv(); n != 1 {
		t.Errorf("ConfigureFromEnv() = %d, want 1", n)
	}
	if got := Ping(); got != 500*time.Millisecond {
		t.Errorf("Ping() = %v, want 500ms", got)
	}
	if got := Long(); got != DefaultLong {
		t.Errorf("Long() = %v, want default", got)
	}
}

func TestReset(t *testing.T) {
	Configure(Config{Ping: time.Minute})
	Reset()
	if got := Current(); got != defaults() {
		t.Errorf("Current() after Reset = %+v", got)
	}
}
