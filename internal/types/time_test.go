package types

import (
	"testing"
	"time"
)

func TestParseAndFormatTime(t *testing.T) {
	in := "2024-03-10T00:00:00Z"
	parsed, err := ParseTime(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.UTC() != time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC) {
		t.Errorf("ParseTime: got %v", parsed)
	}
	if got := FormatTime(parsed); got != in {
		t.Errorf("FormatTime: got %s, want %s", got, in)
	}
}
