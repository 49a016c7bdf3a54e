package diag

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestPositionString(t *testing.T) {
	tests := []struct {
		pos  Position
		want string
	}{
		{Position{}, "<unknown>"},
		{Builtin, "<builtin>"},
		{Position{File: "a.yaml", Line: 3}, "a.yaml:3"},
		{Position{File: "a.yaml", Line: 3, Col: 7}, "a.yaml:3:7"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.pos.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandlerCollects(t *testing.T) {
	h := NewHandler(nil)
	if h.HasFailures() || h.Err() != nil {
		t.Fatal("new handler should be empty")
	}

	h.Report(Errorf(Position{File: "p.yaml", Line: 2}, TypeError, "expected %s", "Word"))
	h.Report(errors.New("plain"))

	if len(h.Failures()) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(h.Failures()))
	}
	if got := h.Failures()[1].Kind; got != StructuralError {
		t.Errorf("plain errors should be structural, got %s", got)
	}

	err := h.Err()
	if !errors.Is(err, ErrFailures) {
		t.Fatalf("Err() should wrap ErrFailures: %v", err)
	}
	for _, want := range []string{"2 error(s)", "p.yaml:2: type error: expected Word", "<unknown>: structural error: plain"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err.Error())
		}
	}
}

func TestReportWrappedFailure(t *testing.T) {
	h := NewHandler(nil)
	f := Errorf(Builtin, RuntimeError, "boom")
	h.Report(fmt.Errorf("context: %w", f))
	if got := h.Failures()[0]; got != f {
		t.Errorf("expected the wrapped failure to be recorded, got %v", got)
	}
}

func TestRecoverInternal(t *testing.T) {
	run := func() (err error) {
		defer Recover(&err)
		Internal("bad node %d", 7)
		return nil
	}
	err := run()
	var ie *InternalError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InternalError, got %v", err)
	}
	if err.Error() != "internal error: bad node 7" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !strings.Contains(fmt.Sprintf("%+v", ie.Err), "TestRecoverInternal") {
		t.Error("expected a stack trace naming the test")
	}
}

func TestRecoverRepanics(t *testing.T) {
	defer func() {
		if r := recover(); r != "other" {
			t.Errorf("expected the original panic, got %v", r)
		}
	}()
	func() (err error) {
		defer Recover(&err)
		panic("other")
	}()
}
