package state

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// ErrNotFound is returned when a Ref has no stored snapshot.
var ErrNotFound = errors.New("state: snapshot not found")

// DefaultNamespace is used by refs that do not name one.
const DefaultNamespace = "shares"

// Ref identifies one persisted snapshot.
type Ref struct {
	Namespace string
	Key       string
}

// Identifier returns the canonical storage key "<namespace>/<key>".
func (r Ref) Identifier() (string, error) {
	namespace := strings.TrimSpace(r.Namespace)
	if namespace == "" {
		namespace = DefaultNamespace
	}
	key := strings.TrimSpace(r.Key)
	if key == "" {
		return "", fmt.Errorf("state: ref key is required")
	}
	if strings.ContainsAny(key, " \t\r\n/") {
		return "", fmt.Errorf("state: invalid ref key %q", r.Key)
	}
	return namespace + "/" + key, nil
}

// ParseRef splits "<namespace>/<key>" or a bare key into a Ref.
func ParseRef(value string) Ref {
	namespace, key, found := strings.Cut(strings.TrimSpace(value), "/")
	if !found {
		return Ref{Namespace: DefaultNamespace, Key: namespace}
	}
	return Ref{Namespace: namespace, Key: key}
}

// Meta is storage-owned metadata used for audit and cache validation.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	Format     string            `json:"format,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Store loads, saves, and deletes one snapshot per Ref.
type Store[T any] interface {
	Load(ctx context.Context, ref Ref) (snapshot T, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, snapshot T, meta Meta) (Meta, error)
	Delete(ctx context.Context, ref Ref) error
}

// ETag returns a content hash of the JSON encoding of v.
func ETag(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("state: etag: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:16]), nil
}

// stamp fills the storage-owned fields of meta for snapshot.
func stamp[T any](snapshot T, meta Meta) (Meta, error) {
	out := cloneMeta(meta)
	if out.SnapshotID == "" {
		out.SnapshotID = uuid.NewString()
	}
	etag, err := ETag(snapshot)
	if err != nil {
		return Meta{}, err
	}
	out.ETag = etag
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = time.Now().UTC()
	}
	return out, nil
}

func cloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra == nil {
		return out
	}
	out.Extra = make(map[string]string, len(meta.Extra))
	for k, v := range meta.Extra {
		out.Extra[k] = v
	}
	return out
}

// envelope is the serialized form used by remote stores.
type envelope[T any] struct {
	Snapshot T    `json:"snapshot"`
	Meta     Meta `json:"meta"`
}

func encodeEnvelope[T any](snapshot T, meta Meta) ([]byte, error) {
	return json.Marshal(envelope[T]{Snapshot: snapshot, Meta: meta})
}

func decodeEnvelope[T any](data []byte) (T, Meta, error) {
	var env envelope[T]
	if err := json.Unmarshal(data, &env); err != nil {
		var zero T
		return zero, Meta{}, err
	}
	return env.Snapshot, env.Meta, nil
}
