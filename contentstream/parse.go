package contentstream

import (
	"errors"
	"fmt"
	"io"

	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/scanner"
)

// Parse splits a content stream into operations. On malformed input it
// returns the operations read so far together with the error, so callers
// can paint what was understood.
func Parse(data []byte) ([]Operation, error) {
	r := scanner.NewObjectReader(scanner.New(data, scanner.Config{}))
	var ops []Operation
	var operands []raw.Object
	for {
		tok, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ops, err
		}
		if tok.Type == scanner.TokenKeyword {
			switch tok.Str {
			case "]", ">>", ">", "{", "}":
				// stray closing delimiters are dropped
				continue
			case "BI":
				op, err := readInlineImage(r)
				if err != nil {
					return ops, err
				}
				ops = append(ops, op)
				operands = nil
				continue
			}
			ops = append(ops, Operation{Operator: tok.Str, Operands: operands})
			operands = nil
			continue
		}
		obj, err := r.ObjectFromToken(tok)
		if err != nil {
			return ops, err
		}
		operands = append(operands, obj)
	}
	if len(operands) > 0 {
		return ops, fmt.Errorf("content stream: %d dangling operands", len(operands))
	}
	return ops, nil
}

// readInlineImage reads the key/value pairs after BI up to the image data,
// which the scanner returns as one token when it meets ID.
func readInlineImage(r *scanner.ObjectReader) (Operation, error) {
	dict := raw.Dict()
	for {
		tok, err := r.Next()
		if err != nil {
			return Operation{}, fmt.Errorf("inline image: %w", err)
		}
		if tok.Type == scanner.TokenInlineImage {
			return Operation{Operator: "BI", Operands: []raw.Object{dict}, ImageData: tok.Bytes}, nil
		}
		if tok.Type != scanner.TokenName {
			return Operation{}, fmt.Errorf("inline image: unexpected token at offset %d", tok.Pos)
		}
		valTok, err := r.Next()
		if err != nil {
			return Operation{}, fmt.Errorf("inline image: %w", err)
		}
		val, err := r.ObjectFromToken(valTok)
		if err != nil {
			return Operation{}, fmt.Errorf("inline image /%s: %w", tok.Str, err)
		}
		dict.Put(tok.Str, val)
	}
}

// Encode serialises operations, one per line.
func Encode(ops []Operation) []byte {
	var buf []byte
	for _, op := range ops {
		buf = AppendOperation(buf, op)
		buf = append(buf, '\n')
	}
	return buf
}

// AppendOperation appends the syntax of a single operation to buf.
func AppendOperation(buf []byte, op Operation) []byte {
	if op.Operator == "BI" && len(op.Operands) == 1 {
		buf = append(buf, "BI"...)
		if d, ok := op.Operands[0].(*raw.DictObj); ok {
			for _, k := range d.Keys() {
				buf = append(buf, ' ')
				buf = raw.AppendObject(buf, k)
				buf = append(buf, ' ')
				buf = raw.AppendObject(buf, d.Lookup(k.Value()))
			}
		}
		buf = append(buf, " ID "...)
		buf = append(buf, op.ImageData...)
		return append(buf, "\nEI"...)
	}
	for _, o := range op.Operands {
		buf = raw.AppendObject(buf, o)
		buf = append(buf, ' ')
	}
	return append(buf, op.Operator...)
}

// Count returns how many operations use operator.
func Count(ops []Operation, operator string) int {
	n := 0
	for _, op := range ops {
		if op.Operator == operator {
			n++
		}
	}
	return n
}

// Op is a shorthand for building operations with numeric operands.
func Op(operator string, operands ...float64) Operation {
	objs := make([]raw.Object, len(operands))
	for i, v := range operands {
		objs[i] = raw.NumberFloat(v)
		if v == float64(int64(v)) {
			objs[i] = raw.NumberInt(int64(v))
		}
	}
	return Operation{Operator: operator, Operands: objs}
}
