package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStringFields(t *testing.T) {
	fields := StringFields(
		StringField{Key: "  provider  ", Value: "  Gemini  "},
		StringField{Key: "ignored", Value: "   "},
		StringField{Key: "   ", Value: "empty key"},
	)

	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}

	if fields[0].Key != "provider" || fields[0].String != "Gemini" {
		t.Fatalf("unexpected provider field: %+v", fields[0])
	}

	if empty := StringFields(); len(empty) != 0 {
		t.Fatalf("expected empty fields, got %d", len(empty))
	}
}

func TestWithFieldsFallsBackToNop(t *testing.T) {
	enriched := WithFields(nil, zap.String("baz", "qux"))
	if enriched == nil {
		t.Fatalf("expected fallback logger when nil provided")
	}

	enriched.Info("does not panic")
}

func TestWithProvider(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)

	WithProvider(zap.New(core), "gemini", "text-embedding-004").Info("test log")

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	ctx := entries[0].ContextMap()
	if ctx[FieldProvider] != "gemini" {
		t.Fatalf("expected provider field to be gemini, got %q", ctx[FieldProvider])
	}
	if ctx[FieldModel] != "text-embedding-004" {
		t.Fatalf("unexpected model field: %q", ctx[FieldModel])
	}
}

func TestMatchFields(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)

	log := WithFields(zap.New(core), MatchFields("p1", 10)...)
	log.Info("matching", Stage("ai_retrieve"), Path("ai"), User("u1"))

	ctx := observed.All()[0].ContextMap()
	if ctx[FieldProjectID] != "p1" {
		t.Fatalf("unexpected project field: %v", ctx[FieldProjectID])
	}
	if ctx["top_k"] != int64(10) {
		t.Fatalf("unexpected top_k field: %v", ctx["top_k"])
	}
	if ctx[FieldStage] != "ai_retrieve" || ctx[FieldPath] != "ai" || ctx[FieldUserID] != "u1" {
		t.Fatalf("unexpected stage/path/user fields: %v", ctx)
	}

	if fields := MatchFields("", 3); len(fields) != 1 {
		t.Fatalf("expected only top_k when project id empty, got %d fields", len(fields))
	}
}
