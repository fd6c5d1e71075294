package assemble

import (
	"context"
	"fmt"

	"github.com/sfdeloach/pdf-tools/ir/semantic"
	"github.com/sfdeloach/pdf-tools/observability"
	"github.com/sfdeloach/pdf-tools/overlay"
)

// Stamp overlays the watermark and footer of opts on every page of doc,
// then numbers the pages when AddPageNumbers is set, records Keywords in
// the metadata and, when a Password is given, marks doc for encryption.
// doc is modified in place and returned.
func Stamp(ctx context.Context, doc *semantic.Document, opts Options) (*semantic.Document, error) {
	log := opts.logger()
	s := overlay.Stamp{Watermark: opts.Watermark, Footer: opts.Footer}
	if !s.Empty() {
		composer := overlay.NewComposer(doc, s)
		for i, p := range doc.Pages() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if _, err := composer.Compose(p); err != nil {
				return nil, fmt.Errorf("stamp page %d: %w", i, err)
			}
		}
	}
	if opts.AddPageNumbers {
		if err := overlay.NumberPages(doc); err != nil {
			return nil, fmt.Errorf("number pages: %w", err)
		}
	}
	if opts.Keywords != "" {
		m := map[string]string{"Keywords": opts.Keywords}
		for k, v := range doc.Metadata {
			if k != "Keywords" {
				m[k] = v
			}
		}
		doc.SetMetadata(m)
	}
	if enc := opts.encryption(); enc != nil {
		if err := enc.Validate(); err != nil {
			return nil, err
		}
		doc.Encryption = enc
	}
	log.Debug("stamped document",
		observability.String("source", doc.Source),
		observability.Int(observability.MetricPageCount, doc.PageCount()),
		observability.Bool("watermark", opts.Watermark != ""),
		observability.Bool("footer", opts.Footer != ""),
		observability.Bool("numbers", opts.AddPageNumbers),
		observability.Bool("encrypted", doc.Encryption != nil),
	)
	return doc, nil
}
