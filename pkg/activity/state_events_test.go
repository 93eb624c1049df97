package activity

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestBuildHealedEventIncludesRepairMetadata(t *testing.T) {
	meta := map[string]any{"source": "url"}
	repairs := map[string]string{"mermaid": "burst"}
	input := StateEventInput{
		ActorID:    " actor ",
		SnapshotID: "snap-1",
		Ref:        "shares/abc",
		Format:     "pako",
		Repairs:    repairs,
		Defaulted:  []string{"rough", "grid"},
		Dropped:    []string{"legacyFlag"},
		Metadata:   meta,
	}

	event := BuildHealedEvent(input)

	if event.Verb != VerbHealed {
		t.Fatalf("expected verb %s got %s", VerbHealed, event.Verb)
	}
	if event.ObjectType != ObjectTypeSnapshot || event.ObjectID != "snap-1" {
		t.Fatalf("unexpected object fields: %+v", event)
	}
	if event.ActorID != "actor" {
		t.Fatalf("unexpected identity fields: %+v", event)
	}
	if event.Metadata["format"] != "pako" || event.Metadata["ref"] != "shares/abc" {
		t.Fatalf("expected format and ref metadata, got %+v", event.Metadata)
	}
	if !reflect.DeepEqual(event.Metadata["defaulted"], []string{"grid", "rough"}) {
		t.Fatalf("expected sorted defaulted fields, got %v", event.Metadata["defaulted"])
	}
	if !reflect.DeepEqual(event.Metadata["dropped"], []string{"legacyFlag"}) {
		t.Fatalf("expected dropped fields, got %v", event.Metadata["dropped"])
	}
	got, ok := event.Metadata["repairs"].(map[string]string)
	if !ok || got["mermaid"] != "burst" {
		t.Fatalf("expected repairs metadata, got %v", event.Metadata["repairs"])
	}
	got["mermaid"] = "changed"
	if repairs["mermaid"] != "burst" {
		t.Fatalf("expected input repairs untouched")
	}
	if _, exists := meta["format"]; exists {
		t.Fatalf("expected input metadata untouched, got %v", meta)
	}
}

func TestBuildLoadFailedEventCarriesError(t *testing.T) {
	event := BuildLoadFailedEvent(StateEventInput{
		Ref: "shares/xyz",
		Err: errors.New("editorstate: unknown serde type: zip"),
	})
	if event.Verb != VerbLoadFailed {
		t.Fatalf("expected verb %s got %s", VerbLoadFailed, event.Verb)
	}
	if event.ObjectID != "shares/xyz" {
		t.Fatalf("expected ref fallback object ID, got %q", event.ObjectID)
	}
	if event.Metadata["error"] != "editorstate: unknown serde type: zip" {
		t.Fatalf("expected error metadata, got %v", event.Metadata["error"])
	}
}

func TestBuildLoadedEventUsesFallbackObjectID(t *testing.T) {
	event := BuildLoadedEvent(StateEventInput{})
	if event.ObjectID != ObjectTypeSnapshot {
		t.Fatalf("expected fallback object ID %q, got %q", ObjectTypeSnapshot, event.ObjectID)
	}
	if event.Metadata != nil {
		t.Fatalf("expected no metadata, got %v", event.Metadata)
	}
}

func TestBuildStateEventsWorkWithHooks(t *testing.T) {
	capture := &CaptureHook{}
	hooks := Hooks{capture}

	err := hooks.Notify(context.Background(), BuildPersistedEvent(StateEventInput{
		Ref:    "shares/abc",
		Format: "base64",
	}))
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(capture.Events) != 1 {
		t.Fatalf("expected capture to record event, got %d", len(capture.Events))
	}
	if capture.Events[0].Verb != VerbPersisted {
		t.Fatalf("unexpected verb %q", capture.Events[0].Verb)
	}
}
