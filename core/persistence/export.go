package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// CollectionExport is the portable form of a collection: every schema
// version and every document with its full history.
type CollectionExport struct {
	Collection Collection          `json:"collection"`
	Versions   []CollectionVersion `json:"versions"`
	Documents  []DocumentExport    `json:"documents"`
}

type DocumentExport struct {
	Document Document          `json:"document"`
	History  []DocumentVersion `json:"history"`
}

// ExportCollection writes the collection as YAML to w.
func (p *Persistence) ExportCollection(ctx context.Context, id string, w io.Writer) error {
	ex := p.read()
	col, err := ex.interactor.SelectCollection(ctx, id)
	if err != nil {
		return err
	}
	versions, err := ex.interactor.SelectCollectionVersions(ctx, id)
	if err != nil {
		return err
	}
	docs, err := ex.interactor.SelectDocuments(ctx, id)
	if err != nil {
		return err
	}

	out := CollectionExport{Collection: *col, Versions: versions, Documents: make([]DocumentExport, 0, len(docs))}
	for _, doc := range docs {
		history, err := ex.history(ctx, doc.ID)
		if err != nil {
			return fmt.Errorf("exporting document %s: %w", doc.ID, err)
		}
		out.Documents = append(out.Documents, DocumentExport{Document: doc, History: history})
	}

	// Schemas only know their JSON form, so the export goes through it.
	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("decoding export: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	return enc.Close()
}
