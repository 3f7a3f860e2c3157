package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"vpo/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("exit status 1")
	err := services.Wrap(services.ErrExternalTool, "executor", "remux", "mkvmerge failed", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatal("expected marker to be preserved")
	}
	if !errors.Is(err, base) {
		t.Fatal("expected cause to be preserved")
	}
	for _, fragment := range []string{"executor", "remux", "mkvmerge failed"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("error %q missing %q", err.Error(), fragment)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "catalog", "claim", "database busy", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want services.ErrorClass
	}{
		{"locked", services.Wrap(services.ErrLocked, "executor", "lock", "held", nil), services.ClassTransient},
		{"disk", services.ErrDiskSpace, services.ClassTransient},
		{"timeout", services.ErrTimeout, services.ClassTransient},
		{"cancelled", context.Canceled, services.ClassTransient},
		{"validation", services.ErrValidation, services.ClassPermanent},
		{"not found", services.ErrNotFound, services.ClassPermanent},
		{"tool", services.ErrExternalTool, services.ClassPermanent},
		{"config", services.ErrConfiguration, services.ClassFatal},
		{"unknown", errors.New("boom"), services.ClassPermanent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsCancelled(t *testing.T) {
	if !services.IsCancelled(services.Wrap(services.ErrCancelled, "worker", "job", "interrupted", nil)) {
		t.Fatal("expected wrapped cancellation to be detected")
	}
	if services.IsCancelled(errors.New("other")) {
		t.Fatal("unexpected cancellation for unrelated error")
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := services.WithJobID(context.Background(), "a1b2c3d4")
	ctx = services.WithPhase(ctx, "apply")
	ctx = services.WithFilePath(ctx, "/library/movie.mkv")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != "a1b2c3d4" {
		t.Fatalf("job id = %q, %v", id, ok)
	}
	if phase, ok := services.PhaseFromContext(ctx); !ok || phase != "apply" {
		t.Fatalf("phase = %q, %v", phase, ok)
	}
	if path, ok := services.FilePathFromContext(ctx); !ok || path != "/library/movie.mkv" {
		t.Fatalf("path = %q, %v", path, ok)
	}
	if _, ok := services.JobIDFromContext(context.Background()); ok {
		t.Fatal("expected empty context to have no job id")
	}
}
