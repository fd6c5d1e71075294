package security

import (
	"errors"
	"fmt"

	"github.com/sfdeloach/pdf-tools/ir/raw"
)

// DataClass identifies the kind of payload being encrypted or decrypted.
type DataClass int

const (
	DataClassStream DataClass = iota
	DataClassString
	DataClassMetadataStream
)

// Handler encrypts and decrypts object data for one document.
type Handler interface {
	IsEncrypted() bool
	Authenticate(password string) error
	DecryptWithFilter(objNum, gen int, data []byte, class DataClass, cryptFilter string) ([]byte, error)
	Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error)
	Encrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error)
	Permissions() raw.Permissions
	EncryptMetadata() bool
}

type HandlerBuilder struct {
	encryptDict *raw.DictObj
	trailer     *raw.DictObj
	fileID      []byte
}

func (b *HandlerBuilder) WithEncryptDict(d *raw.DictObj) *HandlerBuilder {
	b.encryptDict = d
	return b
}
func (b *HandlerBuilder) WithTrailer(d *raw.DictObj) *HandlerBuilder { b.trailer = d; return b }
func (b *HandlerBuilder) WithFileID(id []byte) *HandlerBuilder       { b.fileID = id; return b }

// Build returns a handler for the standard security handler described by
// the encrypt dictionary. Without one, a pass-through handler is returned.
func (b *HandlerBuilder) Build() (Handler, error) {
	d := b.encryptDict
	if d == nil {
		return noEncryptionHandler{}, nil
	}
	if f := nameVal(d, "Filter"); f != "" && f != "Standard" {
		return nil, fmt.Errorf("%w: filter %s", ErrUnsupported, f)
	}
	v := int(intVal(d, "V", 0))
	r := int(intVal(d, "R", 2))
	switch {
	case v == 0:
		v = 1
	case v == 3 || v > 5:
		return nil, fmt.Errorf("%w: V=%d", ErrUnsupported, v)
	}
	if r < 2 || r == 5 || r > 6 {
		return nil, fmt.Errorf("%w: R=%d", ErrUnsupported, r)
	}
	bits := int(intVal(d, "Length", 40))
	switch {
	case v >= 5:
		bits = 256
	case v == 4:
		bits = 128
	case v == 1:
		bits = 40
	}
	if bits%8 != 0 || bits < 40 || bits > 256 {
		return nil, fmt.Errorf("%w: key length %d", ErrUnsupported, bits)
	}

	id := b.fileID
	if len(id) == 0 && b.trailer != nil {
		if arr, ok := b.trailer.Lookup("ID").(*raw.ArrayObj); ok && arr.Len() > 0 {
			if s, ok := arr.Items[0].(raw.StringObj); ok {
				id = s.Value()
			}
		}
	}

	h := &standardHandler{
		v:           v,
		kp:          keyParams{r: r, keyBytes: bits / 8, o: stringVal(d, "O"), p: int32(intVal(d, "P", 0)), id: id, encryptMeta: true},
		u:           stringVal(d, "U"),
		oe:          stringVal(d, "OE"),
		ue:          stringVal(d, "UE"),
		perms:       stringVal(d, "Perms"),
		streamAlgo:  algoRC4,
		stringAlgo:  algoRC4,
		filterAlgos: map[string]cryptAlgo{"Identity": algoNone},
	}
	if bv, ok := d.Lookup("EncryptMetadata").(raw.BoolObj); ok {
		h.kp.encryptMeta = bv.Value()
	}
	if v >= 4 {
		cf, _ := d.Lookup("CF").(*raw.DictObj)
		for _, name := range cf.Keys() {
			entry, ok := cf.Get(name)
			if !ok {
				continue
			}
			ed, _ := entry.(*raw.DictObj)
			switch nameVal(ed, "CFM") {
			case "V2":
				h.filterAlgos[name.Value()] = algoRC4
			case "AESV2", "AESV3":
				h.filterAlgos[name.Value()] = algoAES
			case "None", "":
				h.filterAlgos[name.Value()] = algoNone
			default:
				return nil, fmt.Errorf("%w: crypt filter method %s", ErrUnsupported, nameVal(ed, "CFM"))
			}
		}
		var err error
		if h.streamAlgo, err = h.lookupFilter(nameVal(d, "StmF")); err != nil {
			return nil, err
		}
		if h.stringAlgo, err = h.lookupFilter(nameVal(d, "StrF")); err != nil {
			return nil, err
		}
	}
	return h, nil
}

type cryptAlgo int

const (
	algoNone cryptAlgo = iota
	algoRC4
	algoAES
)

type standardHandler struct {
	v           int
	kp          keyParams
	u           []byte
	oe          []byte
	ue          []byte
	perms       []byte
	key         []byte
	streamAlgo  cryptAlgo
	stringAlgo  cryptAlgo
	filterAlgos map[string]cryptAlgo
}

func (h *standardHandler) lookupFilter(name string) (cryptAlgo, error) {
	if name == "" {
		return algoNone, nil
	}
	algo, ok := h.filterAlgos[name]
	if !ok {
		return algoNone, fmt.Errorf("%w: crypt filter %s not defined", ErrUnsupported, name)
	}
	return algo, nil
}

func (h *standardHandler) IsEncrypted() bool     { return true }
func (h *standardHandler) EncryptMetadata() bool { return h.kp.encryptMeta }

// Authenticate tries the password as the user password, then as the
// owner password.
func (h *standardHandler) Authenticate(password string) error {
	if h.kp.r == 6 {
		pwd, err := unicodePassword(password)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
		if key, ok := unsealKey(pwd, nil, h.u, h.ue); ok && checkPerms(key, h.perms, h.kp.p) {
			h.key = key
			return nil
		}
		if len(h.u) >= 48 {
			if key, ok := unsealKey(pwd, h.u[:48], h.kp.o, h.oe); ok && checkPerms(key, h.perms, h.kp.p) {
				h.key = key
				return nil
			}
		}
		return ErrAuthentication
	}
	padded, err := legacyPassword(password)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if key, ok := checkUser(h.kp, h.u, padded); ok {
		h.key = key
		return nil
	}
	if key, ok := checkUser(h.kp, h.u, userFromOwner(h.kp, h.kp.o, padded)); ok {
		h.key = key
		return nil
	}
	return ErrAuthentication
}

func (h *standardHandler) algoFor(class DataClass, filter string) (cryptAlgo, error) {
	if filter != "" {
		return h.lookupFilter(filter)
	}
	switch class {
	case DataClassString:
		return h.stringAlgo, nil
	case DataClassMetadataStream:
		if !h.kp.encryptMeta {
			return algoNone, nil
		}
	}
	return h.streamAlgo, nil
}

func (h *standardHandler) objectKey(num, gen int, algo cryptAlgo) []byte {
	if h.kp.r == 6 {
		return h.key
	}
	return objectKey(h.key, num, gen, algo == algoAES)
}

func (h *standardHandler) DecryptWithFilter(objNum, gen int, data []byte, class DataClass, cryptFilter string) ([]byte, error) {
	if h.key == nil {
		return nil, errNotAuthenticated
	}
	algo, err := h.algoFor(class, cryptFilter)
	if err != nil {
		return nil, err
	}
	switch algo {
	case algoRC4:
		return rc4XOR(h.objectKey(objNum, gen, algo), data), nil
	case algoAES:
		return aesDecrypt(h.objectKey(objNum, gen, algo), data)
	}
	return data, nil
}

func (h *standardHandler) Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	return h.DecryptWithFilter(objNum, gen, data, class, "")
}

func (h *standardHandler) Encrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	if h.key == nil {
		return nil, errNotAuthenticated
	}
	algo, err := h.algoFor(class, "")
	if err != nil {
		return nil, err
	}
	switch algo {
	case algoRC4:
		return rc4XOR(h.objectKey(objNum, gen, algo), data), nil
	case algoAES:
		return aesEncrypt(h.objectKey(objNum, gen, algo), data)
	}
	return data, nil
}

func (h *standardHandler) Permissions() raw.Permissions {
	return PermissionsFromValue(h.kp.p)
}

var errNotAuthenticated = errors.New("security: handler not authenticated")

type noEncryptionHandler struct{}

func (noEncryptionHandler) IsEncrypted() bool                  { return false }
func (noEncryptionHandler) Authenticate(password string) error { return nil }
func (noEncryptionHandler) DecryptWithFilter(objNum, gen int, data []byte, class DataClass, cryptFilter string) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) Encrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) Permissions() raw.Permissions { return raw.AllPermissions() }
func (noEncryptionHandler) EncryptMetadata() bool        { return false }

// NoopHandler returns a reusable pass-through encryption handler.
func NoopHandler() Handler { return noEncryptionHandler{} }

func nameVal(d *raw.DictObj, key string) string {
	if n, ok := d.Lookup(key).(raw.NameObj); ok {
		return n.Value()
	}
	return ""
}

func intVal(d *raw.DictObj, key string, def int64) int64 {
	if n, ok := d.Lookup(key).(raw.NumberObj); ok {
		return n.Int()
	}
	return def
}

func stringVal(d *raw.DictObj, key string) []byte {
	if s, ok := d.Lookup(key).(raw.StringObj); ok {
		return s.Value()
	}
	return nil
}
