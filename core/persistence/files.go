package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/asaidimu/go-quire/blob"
	"github.com/asaidimu/go-quire/core/ids"
	"github.com/asaidimu/go-quire/core/schema"
)

// preparedContent is validated content ready to be stored: proto-files have
// been replaced by references.
type preparedContent struct {
	value   any
	raw     json.RawMessage
	fileIDs []string
}

// prepareContent validates content against s, persists inline files and
// rewrites them as references.
func (p *Persistence) prepareContent(ctx context.Context, ex *Executor, s *schema.Schema, content any) (*preparedContent, error) {
	normalized, _, err := normalize(content)
	if err != nil {
		return nil, invalid("content", []schema.Issue{{Code: "TYPE_MISMATCH", Message: err.Error()}})
	}
	if issues := schema.Validate(s, normalized); len(issues) > 0 {
		return nil, invalid("content", issues)
	}

	var (
		fileIDs []string
		issues  []schema.Issue
	)
	stored, err := schema.TransformFileNodes(s, normalized, func(path string, node map[string]any) (any, error) {
		if id, _ := node["id"].(string); id != "" {
			rec, err := ex.interactor.SelectFile(ctx, id)
			if errors.Is(err, ErrNotFound) {
				issues = append(issues, schema.Issue{Code: "INVALID_FILE", Message: fmt.Sprintf("file %s does not exist", id), Path: path})
				return node, nil
			}
			if err != nil {
				return nil, err
			}
			fileIDs = append(fileIDs, rec.ID)
			return schema.FileReference(rec.ID, rec.Name, rec.MimeType), nil
		}

		proto, err := schema.DecodeProtoFile(node)
		if err != nil {
			issues = append(issues, schema.Issue{Code: "INVALID_FILE", Message: err.Error(), Path: path})
			return node, nil
		}
		rec, err := p.storeFile(ctx, ex, proto)
		if err != nil {
			return nil, err
		}
		fileIDs = append(fileIDs, rec.ID)
		return schema.FileReference(rec.ID, rec.Name, rec.MimeType), nil
	})
	if err != nil {
		return nil, fmt.Errorf("extracting files: %w", err)
	}
	if len(issues) > 0 {
		return nil, invalid("content", issues)
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encoding content: %w", err)
	}
	return &preparedContent{value: stored, raw: raw, fileIDs: fileIDs}, nil
}

// storeFile records the file and stages its bytes under their checksum.
// The bytes reach the blob store only if the surrounding transaction
// body succeeds.
func (p *Persistence) storeFile(ctx context.Context, ex *Executor, proto *schema.ProtoFile) (*FileRecord, error) {
	checksum := blob.Checksum(proto.Bytes)
	ex.stageBlob(checksum, proto.Name, proto.Bytes)
	rec := &FileRecord{
		ID:        p.ids.New(ids.File),
		Checksum:  checksum,
		Name:      proto.Name,
		MimeType:  proto.MimeType,
		Size:      int64(len(proto.Bytes)),
		CreatedAt: p.timestamp(),
	}
	if err := ex.interactor.InsertFile(ctx, rec); err != nil {
		return nil, fmt.Errorf("recording file %q: %w", proto.Name, err)
	}
	return rec, nil
}

// FileContent returns a file's record and bytes.
func (p *Persistence) FileContent(ctx context.Context, fileID string) (*FileRecord, []byte, error) {
	rec, err := p.interactor.SelectFile(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	var buf bytes.Buffer
	if err := p.blobs.Get(ctx, rec.Checksum, &buf); err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, nil, unexpected("bytes of file %s are missing", fileID)
		}
		return nil, nil, fmt.Errorf("reading file %s: %w", fileID, err)
	}
	if blob.Checksum(buf.Bytes()) != rec.Checksum {
		return nil, nil, unexpected("bytes of file %s do not match checksum", fileID)
	}
	return rec, buf.Bytes(), nil
}
