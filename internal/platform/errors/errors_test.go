package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("rename: %w", New(CodePortfolioClosed, "portfolio is closed"))

	if !stderrors.Is(err, New(CodePortfolioClosed, "other message")) {
		t.Fatal("expected code match through wrapping")
	}
	if stderrors.Is(err, New(CodePortfolioNameEmpty, "portfolio is closed")) {
		t.Fatal("expected different code not to match")
	}
	if !HasCode(err, CodePortfolioClosed) {
		t.Fatal("expected HasCode to find wrapped code")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("expected unknown code, got %s", got)
	}
	wrapped := fmt.Errorf("outer: %w", Wrap(CodeNotFound, "missing", stderrors.New("sql: no rows")))
	if got := CodeOf(wrapped); got != CodeNotFound {
		t.Fatalf("expected %s, got %s", CodeNotFound, got)
	}
}

func TestWrapUnwrapsCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(CodeUnknown, "append failed", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
}
