package repoerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("delete: %w", ArtifactNotFound("storage0", "releases", "a/b"))
	if !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("expected artifact not found match")
	}
	if errors.Is(err, ErrForceRequired) {
		t.Fatalf("unexpected force required match")
	}
	if KindOf(err) != KindArtifactNotFound {
		t.Fatalf("unexpected kind %q", KindOf(err))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("expected empty kind for plain error")
	}
}

func TestPathMismatchNamesBothPaths(t *testing.T) {
	err := PathMismatch("ArtifactEntry", "a/b/1.0/x.jar", "a/b/1.0/y.jar")
	msg := err.Error()
	if !strings.Contains(msg, "a/b/1.0/x.jar") || !strings.Contains(msg, "a/b/1.0/y.jar") {
		t.Fatalf("expected both paths in message: %s", msg)
	}
	if err.Path != "a/b/1.0/x.jar" || err.Other != "a/b/1.0/y.jar" {
		t.Fatalf("unexpected fields: %+v", err)
	}
}

func TestSizeExceededCarriesLimit(t *testing.T) {
	err := ArtifactSizeExceeded("storage0", "releases", 10, 11)
	if err.Limit != 10 || err.Size != 11 {
		t.Fatalf("unexpected limit/size: %+v", err)
	}
	if !strings.HasPrefix(err.Error(), string(KindArtifactSizeExceeded)) {
		t.Fatalf("expected kind prefix: %s", err.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &Error{Kind: KindPathResolution, Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause")
	}
	var nilErr *Error
	if nilErr.Error() != "" || nilErr.Unwrap() != nil {
		t.Fatalf("expected nil-safe methods")
	}
}
