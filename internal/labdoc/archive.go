package labdoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"

	"github.com/google/uuid"

	"labcore/internal/blob"
)

// DefaultPrefix is the key prefix used for archived documents.
const DefaultPrefix = "snapshots"

// ErrEmptyArchive is returned by Latest when no document has been archived.
var ErrEmptyArchive = errors.New("labdoc: archive is empty")

// Archive stores documents as immutable objects. Keys sort by generation time
// so the newest document is the last key under the prefix.
type Archive struct {
	store  blob.Store
	prefix string
}

// NewArchive wraps store. An empty prefix selects DefaultPrefix.
func NewArchive(store blob.Store, prefix string) *Archive {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Archive{store: store, prefix: prefix}
}

// Save writes doc under a new key and returns the stored object info.
func (a *Archive) Save(ctx context.Context, doc Document) (blob.Info, error) {
	payload, err := Marshal(doc)
	if err != nil {
		return blob.Info{}, err
	}
	stamp := doc.GeneratedAt.UTC().Format("20060102T150405.000000000Z")
	key := path.Join(a.prefix, fmt.Sprintf("%s-%s.json", stamp, uuid.NewString()[:8]))
	info, err := a.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: ContentType,
		Metadata: map[string]string{
			"version":     strconv.Itoa(FormatVersion),
			"reagents":    strconv.Itoa(len(doc.Reagents)),
			"recipes":     strconv.Itoa(len(doc.Recipes)),
			"experiments": strconv.Itoa(len(doc.Experiments)),
		},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("archive document: %w", err)
	}
	return info, nil
}

// Load reads the document stored at key.
func (a *Archive) Load(ctx context.Context, key string) (Document, error) {
	_, body, err := a.store.Get(ctx, key)
	if err != nil {
		return Document{}, fmt.Errorf("load %s: %w", key, err)
	}
	defer func() { _ = body.Close() }()
	return Decode(body)
}

// List returns archived documents, oldest first.
func (a *Archive) List(ctx context.Context) ([]blob.Info, error) {
	return a.store.List(ctx, a.prefix+"/")
}

// Latest loads the most recently generated document.
func (a *Archive) Latest(ctx context.Context) (Document, blob.Info, error) {
	infos, err := a.List(ctx)
	if err != nil {
		return Document{}, blob.Info{}, err
	}
	if len(infos) == 0 {
		return Document{}, blob.Info{}, ErrEmptyArchive
	}
	latest := infos[len(infos)-1]
	doc, err := a.Load(ctx, latest.Key)
	if err != nil {
		return Document{}, blob.Info{}, err
	}
	return doc, latest, nil
}

// Prune deletes all but the newest keep documents and reports how many were removed.
func (a *Archive) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	infos, err := a.List(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for i := 0; i < len(infos)-keep; i++ {
		ok, err := a.store.Delete(ctx, infos[i].Key)
		if err != nil {
			return removed, fmt.Errorf("prune %s: %w", infos[i].Key, err)
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}
