package activity

import (
	"sort"
	"strings"
	"time"
)

// Verbs emitted for editor state lifecycle events.
const (
	VerbLoaded     = "editorstate.loaded"
	VerbHealed     = "editorstate.healed"
	VerbLoadFailed = "editorstate.load_failed"
	VerbPersisted  = "editorstate.persisted"
)

// ObjectTypeSnapshot is the object type of every editor state event.
const ObjectTypeSnapshot = "editorstate.snapshot"

// StateEventInput describes the common fields for editor state events.
type StateEventInput struct {
	ActorID    string
	UserID     string
	TenantID   string
	Channel    string
	SnapshotID string
	Ref        string
	Format     string
	// Repairs maps each healed field to the kind of repair applied.
	Repairs    map[string]string
	Defaulted  []string
	Dropped    []string
	Rejected   []string
	Err        error
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildLoadedEvent constructs an event for a state published from a token.
func BuildLoadedEvent(input StateEventInput) Event {
	return buildStateEvent(VerbLoaded, input)
}

// BuildHealedEvent constructs an event describing repaired fields.
func BuildHealedEvent(input StateEventInput) Event {
	return buildStateEvent(VerbHealed, input)
}

// BuildLoadFailedEvent constructs an event for a token that could not be loaded.
func BuildLoadFailedEvent(input StateEventInput) Event {
	return buildStateEvent(VerbLoadFailed, input)
}

// BuildPersistedEvent constructs an event for a token written to a store.
func BuildPersistedEvent(input StateEventInput) Event {
	return buildStateEvent(VerbPersisted, input)
}

func buildStateEvent(verb string, input StateEventInput) Event {
	metadata := cloneMap(input.Metadata)
	set := func(key string, value any) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[key] = value
	}

	if format := strings.TrimSpace(input.Format); format != "" {
		set("format", format)
	}
	if ref := strings.TrimSpace(input.Ref); ref != "" {
		set("ref", ref)
	}
	if input.SnapshotID != "" {
		set("snapshot_id", input.SnapshotID)
	}
	if len(input.Repairs) > 0 {
		repairs := make(map[string]string, len(input.Repairs))
		for field, kind := range input.Repairs {
			repairs[field] = kind
		}
		set("repairs", repairs)
	}
	if len(input.Defaulted) > 0 {
		set("defaulted", sortedCopy(input.Defaulted))
	}
	if len(input.Dropped) > 0 {
		set("dropped", sortedCopy(input.Dropped))
	}
	if len(input.Rejected) > 0 {
		set("rejected", sortedCopy(input.Rejected))
	}
	if input.Err != nil {
		set("error", input.Err.Error())
	}

	objectID := strings.TrimSpace(input.SnapshotID)
	if objectID == "" {
		objectID = strings.TrimSpace(input.Ref)
	}
	if objectID == "" {
		objectID = ObjectTypeSnapshot
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: ObjectTypeSnapshot,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func sortedCopy(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}
