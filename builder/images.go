package builder

import (
	"fmt"

	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/ir/semantic"
	"github.com/sfdeloach/pdf-tools/raster"
)

// EmbedImage appends a page with the given MediaBox to dst whose only
// content paints buf over the whole box through the image XObject /Im0:
// q w 0 0 h x y cm /Im0 Do Q.
func EmbedImage(dst *semantic.Document, buf *raster.PixelBuffer, mediaBox semantic.Rectangle, c raster.Compression) (*semantic.Page, error) {
	enc, err := raster.Encode(buf, c)
	if err != nil {
		return nil, fmt.Errorf("embed image: %w", err)
	}
	ref := dst.Store.Add(ImageXObject(enc))
	res := NewResources().Add("XObject", "Im0", raw.RefObj{R: ref})
	var content Content
	content.Image("Im0", mediaBox.LLX, mediaBox.LLY, mediaBox.Width(), mediaBox.Height())
	return dst.AddPage(mediaBox, res.Dict(), content.Bytes()), nil
}
