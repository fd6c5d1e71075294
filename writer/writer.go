// Package writer serializes documents: the object graph is compacted by
// package optimize, optionally encrypted and written with a classic
// cross-reference table.
package writer

import (
	"bufio"
	"context"
	"crypto/md5"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/ir/semantic"
	"github.com/sfdeloach/pdf-tools/observability"
	"github.com/sfdeloach/pdf-tools/optimize"
	"github.com/sfdeloach/pdf-tools/security"
)

type PDFVersion string

const (
	PDF14 PDFVersion = "1.4"
	PDF16 PDFVersion = "1.6"
	PDF17 PDFVersion = "1.7"
)

type Config struct {
	// Version is the minimum header version; the document's own version
	// and the encryption settings may raise it.
	Version PDFVersion
	// Compression is a compress/zlib level; 0 means the default.
	Compression int
	// Uncompressed skips deflating streams.
	Uncompressed bool
	// KeepDuplicates disables folding of identical streams.
	KeepDuplicates bool
	// Deterministic derives the file identifier from the content alone.
	Deterministic bool
	Logger        observability.Logger
}

// IOError reports a failure to write the output.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Write serializes doc to w.
func Write(ctx context.Context, doc *semantic.Document, w io.Writer, cfg Config) error {
	log := observability.OrNop(cfg.Logger)
	start := time.Now()

	out, err := optimize.New(optimize.Config{
		CombineDuplicateStreams: !cfg.KeepDuplicates,
		CompressStreams:         !cfg.Uncompressed,
		CompressionLevel:        cfg.Compression,
		Logger:                  log,
	}).Optimize(ctx, doc)
	if err != nil {
		return err
	}

	id := fileID(out.Store, cfg.Deterministic)
	var encRef raw.ObjectRef
	if doc.Encryption != nil {
		h, encDict, err := security.NewEncryptor(*doc.Encryption, id)
		if err != nil {
			return err
		}
		if err := encryptStore(ctx, out.Store, h); err != nil {
			return fmt.Errorf("encrypt: %w", err)
		}
		encRef = out.Store.Add(encDict)
	}

	trailer := raw.Dict()
	trailer.Put("Size", raw.NumberInt(int64(out.Store.NextNum())))
	trailer.Put("Root", raw.RefObj{R: out.Root})
	if !out.Info.IsZero() {
		trailer.Put("Info", raw.RefObj{R: out.Info})
	}
	trailer.Put("ID", raw.NewArray(raw.HexStr(id), raw.HexStr(id)))
	if !encRef.IsZero() {
		trailer.Put("Encrypt", raw.RefObj{R: encRef})
	}

	version := headerVersion(cfg.Version, PDFVersion(doc.Version), doc.Encryption)
	bw := bufio.NewWriter(w)
	n, err := serialize(ctx, bw, out.Store, trailer, version)
	if err == nil {
		err = bw.Flush()
	}
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return &IOError{Op: "write", Err: err}
	}
	log.Debug("wrote document",
		observability.String("source", doc.Source),
		observability.Int(observability.MetricPageCount, doc.PageCount()),
		observability.Int(observability.MetricObjectCount, out.Store.Len()),
		observability.Int64("bytes", n),
		observability.Duration(observability.MetricWriteTime, time.Since(start)),
	)
	return nil
}

// WriteFile writes doc to a temporary file next to path and renames it into
// place. On failure the temporary file is removed and path is untouched.
func WriteFile(ctx context.Context, doc *semantic.Document, path string, cfg Config) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()
	if err := Write(ctx, doc, f, cfg); err != nil {
		var ioErr *IOError
		if errors.As(err, &ioErr) {
			ioErr.Path = path
		}
		return err
	}
	if err := f.Sync(); err != nil {
		return &IOError{Op: "sync", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "close", Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

func headerVersion(floor, doc PDFVersion, enc *security.Config) PDFVersion {
	v := PDF14
	for _, c := range []PDFVersion{floor, doc} {
		if c > v && len(c) == 3 {
			v = c
		}
	}
	if enc != nil {
		need := PDF14
		switch {
		case enc.KeyLength == 256:
			need = PDF17
		case enc.Cipher == security.CipherAES:
			need = PDF16
		}
		if need > v {
			v = need
		}
	}
	return v
}

// fileID returns the 16-byte first element of the trailer /ID.
func fileID(store *raw.Store, deterministic bool) []byte {
	h := md5.New()
	if !deterministic {
		var nonce [16]byte
		rand.Read(nonce[:])
		h.Write(nonce[:])
		fmt.Fprint(h, time.Now().UnixNano())
	}
	var buf []byte
	for _, ref := range store.Refs() {
		obj, _ := store.Get(ref)
		buf = raw.AppendObject(buf[:0], obj)
		h.Write(buf)
	}
	return h.Sum(nil)
}
