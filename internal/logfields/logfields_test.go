package logfields

import (
	"errors"
	"testing"
	"time"
)

func TestHelpers(t *testing.T) {
	if a := Task("styles"); a.Key != KeyTask || a.Value.String() != "styles" {
		t.Fatalf("unexpected task attr: %v", a)
	}
	if a := Files(3); a.Key != KeyFiles || a.Value.Int64() != 3 {
		t.Fatalf("unexpected files attr: %v", a)
	}
	if a := Duration(1500 * time.Microsecond); a.Value.Float64() != 1.5 {
		t.Fatalf("unexpected duration: %v", a.Value.Float64())
	}
	if a := Error(nil); a.Value.String() != "" {
		t.Fatalf("nil error should render empty, got %q", a.Value.String())
	}
	if a := Error(errors.New("boom")); a.Value.String() != "boom" {
		t.Fatalf("unexpected error attr: %v", a)
	}
}
