package zaplogger

import (
	"errors"
	"testing"

	"github.com/Zhima-Mochi/minishop-catalog/internal/observability"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrapCarriesFixedAndScopedFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := Wrap(zap.New(core), observability.F("service", "catalog"))

	log.With(observability.F("item_id", int64(7))).Warn("projection_sync_failed",
		observability.Err(errors.New("boom")),
	)

	entries := logs.FilterMessage("projection_sync_failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["service"] != "catalog" {
		t.Fatalf("service field missing: %v", ctx)
	}
	if ctx["item_id"] != int64(7) {
		t.Fatalf("item_id field missing: %v", ctx)
	}
	if ctx["error"] != "boom" {
		t.Fatalf("error field not encoded as string: %v", ctx)
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("unexpected level %v", entries[0].Level)
	}
}

func TestWrapNilFallsBackToNop(t *testing.T) {
	log := Wrap(nil)
	log.Info("ignored")
}
