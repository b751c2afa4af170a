package data

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/engine"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/observability"
	"github.com/platinummonkey/kennel/pkg/storage"
)

const (
	exportBatchSize = 500
	// maxImportLine bounds one NDJSON document
	maxImportLine = 4 << 20
	// NDJSONContentType is the media type of exports
	NDJSONContentType = "application/x-ndjson"
)

// ImportError reports a document that could not be imported
type ImportError struct {
	Line    int    `json:"line"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

// ImportResult summarizes an import
type ImportResult struct {
	Imported int           `json:"imported"`
	Failed   int           `json:"failed"`
	Errors   []ImportError `json:"errors,omitempty"`
}

func requireBypass(subject acl.Subject, action string) error {
	if !subject.Bypass() {
		return errs.Forbidden(errs.CodeForbidden, "only superadmins can %s objects", action)
	}
	return nil
}

// Export writes every object of a type matching q to w, one JSON document per
// line with its meta object. Writes racing with the export may be missed.
func (s *Store) Export(ctx context.Context, tenantID, typ string, q engine.Query, subject acl.Subject, w io.Writer) (n int, err error) {
	ctx, end := s.start(ctx, "Export", tenantID, typ)
	defer end(&err)

	if err := checkType(typ); err != nil {
		return 0, err
	}
	if err := requireBypass(subject, "export"); err != nil {
		return 0, err
	}
	if _, err := s.schemas.Get(ctx, tenantID, typ); err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	for from := 0; ; from += exportBatchSize {
		page, err := s.engine.Search(ctx, engine.SearchRequest{
			Aliases: []string{alias(tenantID, typ)},
			Query:   q,
			From:    from,
			Size:    exportBatchSize,
			Sort:    []engine.SortField{{Field: "meta.createdAt"}},
		})
		if err != nil {
			return n, translate(err, typ, "")
		}
		for _, hit := range page.Hits {
			if err := enc.Encode(fromDocument(typ, hit.Document)); err != nil {
				return n, errs.Internal(err, "failed to write export")
			}
			n++
		}
		if len(page.Hits) < exportBatchSize {
			return n, nil
		}
	}
}

// ExportToBucket streams an export to object storage and returns its location
func (s *Store) ExportToBucket(ctx context.Context, tenantID, typ string, q engine.Query, subject acl.Subject, sink storage.Sink, key string) (string, int, error) {
	if err := requireBypass(subject, "export"); err != nil {
		return "", 0, err
	}
	if key == "" {
		key = fmt.Sprintf("%s/%s/%s.ndjson", tenantID, typ, s.now().Format("20060102T150405Z"))
	}

	pr, pw := io.Pipe()
	done := make(chan struct{})
	var (
		count     int
		exportErr error
	)
	go func() {
		defer close(done)
		count, exportErr = s.Export(ctx, tenantID, typ, q, subject, pw)
		pw.CloseWithError(exportErr)
	}()

	location, err := sink.PutObject(ctx, key, pr, NDJSONContentType)
	pr.CloseWithError(err)
	<-done
	if exportErr != nil {
		return "", 0, exportErr
	}
	if err != nil {
		return "", 0, errs.Internal(err, "failed to store export [%s]", key)
	}
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"type":     typ,
		"objects":  count,
		"location": location,
	}).Info("objects exported")
	return location, count, nil
}

// Import reads documents written by Export. With preserveIDs the exported ids
// and meta are kept and existing objects are overwritten, so the import can be
// retried. Without it every document is created anew.
func (s *Store) Import(ctx context.Context, tenantID, typ string, r io.Reader, preserveIDs bool, subject acl.Subject) (res *ImportResult, err error) {
	ctx, end := s.start(ctx, "Import", tenantID, typ)
	defer end(&err)

	if err := checkType(typ); err != nil {
		return nil, err
	}
	if err := requireBypass(subject, "import"); err != nil {
		return nil, err
	}
	sch, err := s.schemas.Get(ctx, tenantID, typ)
	if err != nil {
		return nil, err
	}

	res = &ImportResult{}
	fail := func(line int, id string, err error) {
		res.Failed++
		res.Errors = append(res.Errors, ImportError{Line: line, ID: id, Message: errs.PublicMessage(err)})
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxImportLine)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var o Object
		if err := json.Unmarshal(raw, &o); err != nil {
			fail(line, "", errs.InvalidParameter("invalid document: %v", err))
			continue
		}
		body, err := payload(o.Source)
		if err != nil {
			fail(line, o.ID, err)
			continue
		}
		if err := sch.CheckRequired(body); err != nil {
			fail(line, o.ID, err)
			continue
		}

		now := s.now()
		opts := engine.WriteOptions{}
		if preserveIDs {
			if sch.IDPath != "" {
				if o.ID, err = resolveID(sch, body, o.ID); err != nil {
					fail(line, o.ID, err)
					continue
				}
			}
			if o.CreatedAt.IsZero() {
				o.CreatedAt = now
			}
			if o.UpdatedAt.IsZero() {
				o.UpdatedAt = now
			}
		} else {
			if o.ID, err = resolveID(sch, body, ""); err != nil {
				fail(line, "", err)
				continue
			}
			o.Owner, o.Group = subject.ID, subject.Group
			o.CreatedAt, o.UpdatedAt = now, now
			opts.CreateOnly = true
		}
		o.Source = body

		if _, err := s.engine.Index(ctx, alias(tenantID, typ), engine.Document{ID: o.ID, Source: o.storedSource()}, opts); err != nil {
			err = translate(err, typ, o.ID)
			if errs.KindOf(err) == errs.KindInternal {
				return res, err
			}
			fail(line, o.ID, err)
			continue
		}
		res.Imported++
	}
	if err := scanner.Err(); err != nil {
		return res, errs.InvalidParameter("failed to read import: %v", err)
	}
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"type":     typ,
		"imported": res.Imported,
		"failed":   res.Failed,
	}).Info("objects imported")
	return res, nil
}
