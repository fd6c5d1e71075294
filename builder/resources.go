package builder

import (
	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/raster"
)

// StandardFont returns the dictionary of a non-embedded standard 14 font
// using WinAnsiEncoding.
func StandardFont(baseFont string) *raw.DictObj {
	d := raw.Dict()
	d.Put("Type", raw.NameLiteral("Font"))
	d.Put("Subtype", raw.NameLiteral("Type1"))
	d.Put("BaseFont", raw.NameLiteral(baseFont))
	d.Put("Encoding", raw.NameLiteral("WinAnsiEncoding"))
	return d
}

// Transparency returns an ExtGState dictionary setting the fill (ca) and
// stroke (CA) alpha.
func Transparency(fill, stroke float64) *raw.DictObj {
	d := raw.Dict()
	d.Put("Type", raw.NameLiteral("ExtGState"))
	d.Put("ca", raw.NumberFloat(fill))
	d.Put("CA", raw.NumberFloat(stroke))
	return d
}

// ImageXObject wraps an encoded image in an image XObject stream.
func ImageXObject(enc *raster.Encoded) *raw.StreamObj {
	d := raw.Dict()
	d.Put("Type", raw.NameLiteral("XObject"))
	d.Put("Subtype", raw.NameLiteral("Image"))
	d.Put("Width", raw.NumberInt(int64(enc.Width)))
	d.Put("Height", raw.NumberInt(int64(enc.Height)))
	d.Put("ColorSpace", raw.NameLiteral(enc.ColorSpace.PDFName()))
	d.Put("BitsPerComponent", raw.NumberInt(8))
	d.Put("Filter", raw.NameLiteral(enc.Filter))
	if enc.Predictor {
		parms := raw.Dict()
		parms.Put("Predictor", raw.NumberInt(15))
		parms.Put("Colors", raw.NumberInt(int64(enc.ColorSpace.Components())))
		parms.Put("BitsPerComponent", raw.NumberInt(8))
		parms.Put("Columns", raw.NumberInt(int64(enc.Width)))
		d.Put("DecodeParms", parms)
	}
	d.Put("Length", raw.NumberInt(int64(len(enc.Data))))
	return raw.NewStream(d, enc.Data)
}

// Resources builds a resource dictionary category by category.
type Resources struct {
	dict *raw.DictObj
}

func NewResources() *Resources { return &Resources{dict: raw.Dict()} }

// Add stores obj under name in category, e.g. ("Font", "F1", ref).
func (r *Resources) Add(category, name string, obj raw.Object) *Resources {
	cat, ok := r.dict.Lookup(category).(*raw.DictObj)
	if !ok {
		cat = raw.Dict()
		r.dict.Put(category, cat)
	}
	cat.Put(name, obj)
	return r
}

// Dict returns the resource dictionary.
func (r *Resources) Dict() *raw.DictObj { return r.dict }
