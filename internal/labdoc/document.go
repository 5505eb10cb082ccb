// Package labdoc defines the versioned JSON document used to save and load the
// full lab state, and an archive that keeps those documents in an object store.
package labdoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"labcore/pkg/domain"
)

// FormatVersion is the document version written by Encode.
const FormatVersion = 1

// ContentType is the media type stored alongside archived documents.
const ContentType = "application/json"

// Document is the persisted form of a domain.Snapshot. Reagents and recipes
// are written as name-ordered lists, experiments in execution order.
type Document struct {
	Version     int                 `json:"version"`
	GeneratedAt time.Time           `json:"generated_at"`
	Reagents    []domain.Reagent    `json:"reagents"`
	Recipes     []domain.Recipe     `json:"recipes"`
	Experiments []domain.Experiment `json:"experiments"`
}

// FromSnapshot builds a document from a snapshot.
func FromSnapshot(snapshot domain.Snapshot, generatedAt time.Time) Document {
	doc := Document{
		Version:     FormatVersion,
		GeneratedAt: generatedAt.UTC(),
		Reagents:    make([]domain.Reagent, 0, len(snapshot.Reagents)),
		Recipes:     make([]domain.Recipe, 0, len(snapshot.Recipes)),
		Experiments: make([]domain.Experiment, 0, len(snapshot.Experiments)),
	}
	for _, r := range snapshot.Reagents {
		doc.Reagents = append(doc.Reagents, r.Clone())
	}
	slices.SortFunc(doc.Reagents, func(a, b domain.Reagent) int { return strings.Compare(a.Name, b.Name) })
	for _, r := range snapshot.Recipes {
		doc.Recipes = append(doc.Recipes, r.Clone())
	}
	slices.SortFunc(doc.Recipes, func(a, b domain.Recipe) int { return strings.Compare(a.Name, b.Name) })
	for _, e := range snapshot.Experiments {
		doc.Experiments = append(doc.Experiments, e.Clone())
	}
	return doc
}

// Snapshot converts the document back into a snapshot. Duplicate names are
// rejected, and the result must pass domain.Snapshot.Validate.
func (d Document) Snapshot() (domain.Snapshot, error) {
	snap := domain.Snapshot{
		Reagents:    make(map[string]domain.Reagent, len(d.Reagents)),
		Recipes:     make(map[string]domain.Recipe, len(d.Recipes)),
		Experiments: make([]domain.Experiment, 0, len(d.Experiments)),
	}
	for _, r := range d.Reagents {
		if _, dup := snap.Reagents[r.Name]; dup {
			return domain.Snapshot{}, domain.DuplicateNameError{Entity: domain.EntityReagent, Name: r.Name}
		}
		snap.Reagents[r.Name] = r.Clone()
	}
	for _, r := range d.Recipes {
		if _, dup := snap.Recipes[r.Name]; dup {
			return domain.Snapshot{}, domain.DuplicateNameError{Entity: domain.EntityRecipe, Name: r.Name}
		}
		snap.Recipes[r.Name] = r.Clone()
	}
	for _, e := range d.Experiments {
		snap.Experiments = append(snap.Experiments, e.Clone())
	}
	if err := snap.Validate(); err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

// Encode writes the document as indented JSON.
func Encode(w io.Writer, doc Document) error {
	if doc.Version == 0 {
		doc.Version = FormatVersion
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return nil
}

// Marshal returns the encoded document.
func Marshal(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a document and rejects versions this build cannot read.
func Decode(r io.Reader) (Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	if doc.Version < 1 || doc.Version > FormatVersion {
		return Document{}, fmt.Errorf("unsupported document version %d", doc.Version)
	}
	return doc, nil
}
