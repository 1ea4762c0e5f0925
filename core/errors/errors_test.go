package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      *NotFoundError
		wantMsg  string
		wantBase error
	}{
		{
			name:     "with ID",
			err:      &NotFoundError{Resource: "manuscript", ID: "ms-42"},
			wantMsg:  "manuscript not found: ms-42",
			wantBase: ErrNotFound,
		},
		{
			name:     "without ID",
			err:      &NotFoundError{Resource: "verse"},
			wantMsg:  "verse not found",
			wantBase: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, tt.wantBase) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.wantBase)
			}
		})
	}

	t.Run("with underlying error", func(t *testing.T) {
		underlyingErr := fmt.Errorf("disk error")
		err := &NotFoundError{Resource: "manuscript", ID: "x", Err: underlyingErr}
		if !errors.Is(err, underlyingErr) || !errors.Is(err, ErrNotFound) {
			t.Errorf("expected %v to match both the cause and ErrNotFound", err)
		}
	})
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		name    string
		err     *ValidationError
		wantMsg string
	}{
		{
			name:    "with field",
			err:     NewValidation("ms_ids", "at least two manuscripts required"),
			wantMsg: "validation failed for ms_ids: at least two manuscripts required",
		},
		{
			name:    "without field",
			err:     &ValidationError{Message: "empty"},
			wantMsg: "validation failed: empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, ErrInvalidInput) {
				t.Error("expected ValidationError to match ErrInvalidInput")
			}
		})
	}
}

func TestParseError(t *testing.T) {
	err := NewParse("alignment table", "12", "unexpected token")
	if got := err.Error(); got != "failed to parse alignment table at 12: unexpected token" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("expected ParseError to match ErrInvalidInput")
	}
}

func TestWrapParse(t *testing.T) {
	cause := fmt.Errorf("unexpected EOF")
	err := WrapParse("TEI", "ms.xml", cause)
	if got := err.Error(); got != "failed to parse TEI at ms.xml: unexpected EOF" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("expected WrapParse to keep the decoder error")
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("expected WrapParse to match ErrInvalidInput")
	}
}

func TestCollationError(t *testing.T) {
	oracle := fmt.Errorf("oracle exploded")
	err := NewCollation("3", oracle)

	if got := err.Error(); got != "collation failed for verse 3: oracle exploded" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, ErrCollation) {
		t.Error("expected CollationError to match ErrCollation")
	}
	if !errors.Is(err, oracle) {
		t.Error("expected CollationError to unwrap to the oracle error")
	}

	var ce *CollationError
	wrapped := Wrap(err, "batch")
	if !As(wrapped, &ce) || ce.Verse != "3" {
		t.Errorf("As() did not recover verse, got %+v", ce)
	}
}

func TestClusteringError(t *testing.T) {
	err := &ClusteringError{
		Attempts: []string{"bogus", "ward"},
		Errs:     []error{fmt.Errorf("unknown method"), fmt.Errorf("bad input")},
	}

	msg := err.Error()
	for _, want := range []string{"bogus: unknown method", "ward: bad input"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if !errors.Is(err, ErrClustering) {
		t.Error("expected ClusteringError to match ErrClustering")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}

	base := NewNotFound("manuscript", "a")
	err := Wrapf(base, "loading %s", "a")
	if got := err.Error(); got != "loading a: manuscript not found: a" {
		t.Errorf("Wrapf() = %q", got)
	}
	if !Is(err, ErrNotFound) {
		t.Error("wrapped error should still match ErrNotFound")
	}
}

func TestUnsupportedError(t *testing.T) {
	err := NewUnsupported("output mode", "gif")
	if got := err.Error(); got != "unsupported output mode: gif" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, ErrUnsupported) {
		t.Error("expected UnsupportedError to match ErrUnsupported")
	}
}
