package persistence

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/asaidimu/go-quire/core/sandbox"
	"github.com/asaidimu/go-quire/core/summary"
)

// computeSummary runs the summary getter. Failures are captured in the
// returned summary.
func (p *Persistence) computeSummary(ctx context.Context, documentID string, vs VersionSettings, content any) summary.Summary {
	out, err := p.sandbox.Run(ctx, vs.Summary, content)
	if err != nil {
		p.warnDerived("summary", documentID, err)
		return summary.Failed(err)
	}
	obj, ok := out.(map[string]any)
	if !ok {
		err := fmt.Errorf("summary getter must return an object, got %T", out)
		p.warnDerived("summary", documentID, err)
		return summary.Failed(err)
	}
	s, err := summary.Build(obj)
	if err != nil {
		p.warnDerived("summary", documentID, err)
		return summary.Failed(err)
	}
	return s
}

// computeBlockingKeys runs the blocking-keys getter and returns its distinct,
// non-empty keys. ok is false when the version has no getter or it failed,
// which disables duplicate detection for the write.
func (p *Persistence) computeBlockingKeys(ctx context.Context, documentID string, vs VersionSettings, content any) (keys []string, ok bool) {
	if vs.BlockingKeys == nil {
		return nil, false
	}
	out, err := p.sandbox.Run(ctx, *vs.BlockingKeys, content)
	if err != nil {
		p.warnDerived("blocking keys", documentID, err)
		return nil, false
	}
	list, isList := out.([]any)
	if !isList {
		p.warnDerived("blocking keys", documentID, fmt.Errorf("getter must return a list, got %T", out))
		return nil, false
	}

	seen := make(map[string]struct{}, len(list))
	for i, item := range list {
		key, isString := item.(string)
		if !isString {
			p.warnDerived("blocking keys", documentID, fmt.Errorf("key %d is %T, not a string", i, item))
			return nil, false
		}
		if key == "" {
			continue
		}
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, true
}

func (p *Persistence) warnDerived(what, documentID string, err error) {
	fields := []zap.Field{zap.String("document", documentID), zap.Error(err)}
	if f, ok := sandbox.AsFailure(err); ok {
		fields = append(fields, zap.String("kind", string(f.Kind)))
	}
	p.logger.Warn("derived "+what+" unavailable", fields...)
}
