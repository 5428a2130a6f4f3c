package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/asaidimu/go-quire/core/ids"
	"github.com/asaidimu/go-quire/core/query"
	"github.com/asaidimu/go-quire/core/schema"
	"github.com/asaidimu/go-quire/core/search"
	"github.com/asaidimu/go-quire/core/summary"
)

// errPossibleDuplicate rolls back a create that matched an existing document.
var errPossibleDuplicate = errors.New("possible duplicate")

// CreateDocument validates content against the collection's latest schema
// and stores it as the first version of a new document. Unless opts.Force is
// set, a document sharing a blocking key is reported instead of writing.
func (p *Persistence) CreateDocument(ctx context.Context, collectionID string, content any, opts CreateOptions) (*CreateDocumentResult, error) {
	return withEventEmission(p, "create_document", DocumentCreateStart, DocumentCreateSuccess, DocumentCreateFailed, collectionID, content,
		func() (*CreateDocumentResult, error) {
			var (
				doc       *Document
				version   *CollectionVersion
				prepared  *preparedContent
				rec       *VersionRecord
				duplicate *PossibleDuplicate
				at        = p.timestamp()
			)
			err := p.transact(ctx, func(ex *Executor) error {
				_, latest, err := ex.latestCollection(ctx, collectionID)
				if err != nil {
					return err
				}
				version = latest

				prepared, err = p.prepareContent(ctx, ex, version.Schema, content)
				if err != nil {
					return err
				}

				doc = &Document{
					ID:              p.ids.New(ids.Document),
					CollectionID:    collectionID,
					LatestVersionID: p.ids.New(ids.DocumentVersion),
					Origin:          opts.Origin,
					CreatedAt:       at,
				}
				keys, keysOK := p.computeBlockingKeys(ctx, doc.ID, version.Settings, prepared.value)
				if keysOK && !opts.Force && len(keys) > 0 {
					existing, err := ex.interactor.FindByBlockingKeys(ctx, collectionID, keys, "")
					if err != nil {
						return fmt.Errorf("checking blocking keys: %w", err)
					}
					if existing != "" {
						duplicate = &PossibleDuplicate{ExistingDocumentID: existing, Keys: keys}
						return errPossibleDuplicate
					}
				}

				if err := ex.interactor.InsertDocument(ctx, doc); err != nil {
					return fmt.Errorf("inserting document: %w", err)
				}
				rec = newRecord(doc.LatestVersionID, doc.ID, version.ID, at)
				if err := ex.appendVersion(ctx, doc, nil, rec, prepared.raw); err != nil {
					return err
				}
				if err := ex.interactor.LinkFiles(ctx, rec.ID, prepared.fileIDs); err != nil {
					return fmt.Errorf("linking files: %w", err)
				}
				if err := ex.interactor.ReplaceBlockingKeys(ctx, collectionID, doc.ID, keys); err != nil {
					return fmt.Errorf("storing blocking keys: %w", err)
				}
				return nil
			})
			if errors.Is(err, errPossibleDuplicate) {
				p.emitEvent(createEvent(DocumentDuplicate, "create", collectionID, content, duplicate, nil, nil, at))
				p.logger.Info("possible duplicate rejected",
					zap.String("collection", collectionID),
					zap.String("existing", duplicate.ExistingDocumentID),
					zap.Strings("keys", duplicate.Keys))
				return &CreateDocumentResult{PossibleDuplicate: duplicate}, nil
			}
			if err != nil {
				return nil, err
			}

			view := p.afterWrite(ctx, doc, version, rec, prepared.value)
			return &CreateDocumentResult{Document: view}, nil
		})
}

// CreateDocumentVersion stores content as the new latest version of a
// document. expectedLatestVersionID must still be the latest version.
func (p *Persistence) CreateDocumentVersion(ctx context.Context, collectionID, documentID, expectedLatestVersionID string, content any) (*DocumentView, error) {
	return withEventEmission(p, "create_document_version", DocumentUpdateStart, DocumentUpdateSuccess, DocumentUpdateFailed, collectionID, content,
		func() (*DocumentView, error) {
			var (
				doc      *Document
				version  *CollectionVersion
				prepared *preparedContent
				rec      *VersionRecord
			)
			err := p.transact(ctx, func(ex *Executor) error {
				var err error
				doc, err = ex.interactor.SelectDocument(ctx, documentID)
				if err != nil {
					return err
				}
				if doc.CollectionID != collectionID {
					return notFound("document", documentID)
				}
				if doc.LatestVersionID != expectedLatestVersionID {
					return &ConflictError{ID: documentID, Expected: expectedLatestVersionID, Actual: doc.LatestVersionID}
				}
				if _, version, err = ex.latestCollection(ctx, collectionID); err != nil {
					return err
				}
				if prepared, err = p.prepareContent(ctx, ex, version.Schema, content); err != nil {
					return err
				}

				prev, err := ex.latestRecord(ctx, doc)
				if err != nil {
					return err
				}
				rec = newRecord(p.ids.New(ids.DocumentVersion), doc.ID, version.ID, p.timestamp())
				if err := ex.appendVersion(ctx, doc, prev, rec, prepared.raw); err != nil {
					return err
				}
				if err := ex.interactor.LinkFiles(ctx, rec.ID, prepared.fileIDs); err != nil {
					return fmt.Errorf("linking files: %w", err)
				}
				keys, _ := p.computeBlockingKeys(ctx, doc.ID, version.Settings, prepared.value)
				if err := ex.interactor.ReplaceBlockingKeys(ctx, collectionID, doc.ID, keys); err != nil {
					return fmt.Errorf("storing blocking keys: %w", err)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
			return p.afterWrite(ctx, doc, version, rec, prepared.value), nil
		})
}

// afterWrite derives the summary and indexes a committed document version.
func (p *Persistence) afterWrite(ctx context.Context, doc *Document, version *CollectionVersion, rec *VersionRecord, content any) *DocumentView {
	s := p.computeSummary(ctx, doc.ID, version.Settings, content)
	p.search.Index(search.Documents).Upsert(search.Entry{
		ID:     doc.ID,
		Scope:  doc.CollectionID,
		Chunks: indexChunks(version.Schema, content, s),
	})
	p.flushSearch(ctx)

	latest := DocumentVersion{
		ID:                  rec.ID,
		DocumentID:          doc.ID,
		PreviousVersionID:   rec.PreviousVersionID,
		CollectionVersionID: version.ID,
		Content:             content,
		CreatedAt:           rec.CreatedAt,
	}
	return &DocumentView{Document: *doc, Latest: latest, Summary: s}
}

func indexChunks(s *schema.Schema, content any, sum summary.Summary) []string {
	chunks := schema.TextChunks(s, content)
	if text := sum.Text(); text != "" {
		chunks = append([]string{text}, chunks...)
	}
	return chunks
}

// DeleteDocument removes a document with its whole history. confirmation
// must equal ConfirmDeletion.
func (p *Persistence) DeleteDocument(ctx context.Context, id, confirmation string) error {
	_, err := withEventEmission(p, "delete_document", DocumentDeleteStart, DocumentDeleteSuccess, DocumentDeleteFailed, "", id,
		func() (struct{}, error) {
			if confirmation != ConfirmDeletion {
				return struct{}{}, fmt.Errorf("deleting document %s: %w", id, ErrConfirmationRequired)
			}
			err := p.transact(ctx, func(ex *Executor) error {
				if _, err := ex.interactor.SelectDocument(ctx, id); err != nil {
					return err
				}
				return ex.interactor.DeleteDocument(ctx, id)
			})
			if err != nil {
				return struct{}{}, err
			}
			p.search.Index(search.Documents).Remove(id)
			p.flushSearch(ctx)
			return struct{}{}, nil
		})
	return err
}

// GetDocument returns a document with its latest content and summary.
func (p *Persistence) GetDocument(ctx context.Context, id string) (*DocumentView, error) {
	ex := p.read()
	doc, err := ex.interactor.SelectDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.view(ctx, ex, doc, map[string]*CollectionVersion{})
}

// view loads the latest version of doc. versions caches collection versions
// across calls.
func (p *Persistence) view(ctx context.Context, ex *Executor, doc *Document, versions map[string]*CollectionVersion) (*DocumentView, error) {
	rec, err := ex.latestRecord(ctx, doc)
	if err != nil {
		return nil, err
	}
	latest, err := versionFromRecord(*rec, rec.Snapshot)
	if err != nil {
		return nil, err
	}

	cv, ok := versions[rec.CollectionVersionID]
	if !ok {
		cv, err = ex.interactor.SelectCollectionVersion(ctx, rec.CollectionVersionID)
		if errors.Is(err, ErrNotFound) {
			return nil, unexpected("version %s references missing collection version %s", rec.ID, rec.CollectionVersionID)
		}
		if err != nil {
			return nil, err
		}
		versions[rec.CollectionVersionID] = cv
	}

	return &DocumentView{
		Document: *doc,
		Latest:   *latest,
		Summary:  p.computeSummary(ctx, doc.ID, cv.Settings, latest.Content),
	}, nil
}

// ListDocuments returns the documents of a collection with their summaries.
// Documents are ordered by the summary property opts.SortBy when it is
// sortable, else by the property requesting a default sort, else by creation
// time.
func (p *Persistence) ListDocuments(ctx context.Context, collectionID string, opts ListOptions) ([]DocumentView, error) {
	ex := p.read()
	if _, err := ex.interactor.SelectCollection(ctx, collectionID); err != nil {
		return nil, err
	}
	docs, err := ex.interactor.SelectDocuments(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	versions := map[string]*CollectionVersion{}
	views := make([]DocumentView, 0, len(docs))
	for i := range docs {
		v, err := p.view(ctx, ex, &docs[i], versions)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}

	if opts.Filter != nil {
		if err := opts.Filter.Check(); err != nil {
			return nil, invalid("filter", []schema.Issue{{Code: issueInvalidFilter, Message: err.Error()}})
		}
		views, err = query.Apply(ctx, p.filters, opts.Filter, views, viewLookup)
		if err != nil {
			return nil, invalid("filter", []schema.Issue{{Code: issueInvalidFilter, Message: err.Error()}})
		}
	}
	sortViews(views, opts)
	return page(views, opts.Offset, opts.Limit), nil
}

const issueInvalidFilter = "INVALID_FILTER"

const contentPrefix = "content."

// viewLookup resolves filter fields against a view's summary labels, or
// its latest content for fields prefixed with "content.".
func viewLookup(v DocumentView) query.Lookup {
	return func(field string) (any, bool) {
		if path, ok := strings.CutPrefix(field, contentPrefix); ok {
			return schema.ValueAtPath(v.Latest.Content, path)
		}
		value, ok := v.Summary.Lookup(field)
		return value.Value, ok
	}
}

func page(views []DocumentView, offset, limit int) []DocumentView {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(views) {
		return []DocumentView{}
	}
	views = views[offset:]
	if limit > 0 && limit < len(views) {
		views = views[:limit]
	}
	return views
}

func sortViews(views []DocumentView, opts ListOptions) {
	label, descending := opts.SortBy, opts.Descending
	if label != "" && !sortableLabel(views, label) {
		label = ""
	}
	if label == "" {
		for _, v := range views {
			if d, ok := v.Summary.DefaultSort(); ok {
				label, descending = d.Label, d.DefaultSort == summary.SortDesc
				break
			}
		}
	}

	sort.SliceStable(views, func(i, j int) bool {
		if label != "" {
			a, _ := views[i].Summary.Lookup(label)
			b, _ := views[j].Summary.Lookup(label)
			if c := summary.Compare(a.Value, b.Value); c != 0 {
				if descending {
					return c > 0
				}
				return c < 0
			}
		}
		if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].CreatedAt.Before(views[j].CreatedAt)
		}
		return views[i].ID < views[j].ID
	})
}

func sortableLabel(views []DocumentView, label string) bool {
	for _, v := range views {
		if value, ok := v.Summary.Lookup(label); ok {
			return value.Sortable
		}
	}
	return false
}

// DocumentHistory reconstructs every version of a document, oldest first.
func (p *Persistence) DocumentHistory(ctx context.Context, documentID string) ([]DocumentVersion, error) {
	ex := p.read()
	if _, err := ex.interactor.SelectDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return ex.history(ctx, documentID)
}

// DocumentVersionContent reconstructs a single document version.
func (p *Persistence) DocumentVersionContent(ctx context.Context, versionID string) (*DocumentVersion, error) {
	return p.read().versionContent(ctx, versionID)
}

// Search queries the document index, optionally scoped to a collection.
func (p *Persistence) Search(ctx context.Context, query string, opts search.Options) ([]search.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.search.Search(search.Documents, query, opts), nil
}
