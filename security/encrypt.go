package security

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/sfdeloach/pdf-tools/ir/raw"
)

// Cipher selects the block or stream cipher for 128-bit keys.
type Cipher int

const (
	CipherRC4 Cipher = iota
	CipherAES
)

// Config describes how a document is to be encrypted on output.
type Config struct {
	UserPassword string
	// OwnerPassword defaults to a random 32-byte hex value, which leaves
	// the owner restrictions locked for everybody.
	OwnerPassword string
	// KeyLength is 40, 128 or 256 bits. Zero means 128.
	KeyLength int
	// Cipher applies to 128-bit keys only; 40 is always RC4 and 256 AES.
	Cipher      Cipher
	Permissions raw.Permissions
	// PlainMetadata leaves the XMP metadata stream unencrypted.
	PlainMetadata bool
}

// Validate reports an invalid combination of settings.
func (c Config) Validate() error {
	switch c.KeyLength {
	case 0, 128, 256:
	case 40:
		if c.Cipher == CipherAES {
			return &ConfigError{Reason: "AES requires a 128 or 256 bit key"}
		}
	default:
		return &ConfigError{Reason: "key length must be 40, 128 or 256"}
	}
	if c.keyLength() < 256 {
		for _, pwd := range []string{c.UserPassword, c.OwnerPassword} {
			if _, err := legacyPassword(pwd); err != nil {
				return &ConfigError{Reason: "passwords for 40 and 128 bit keys must be Latin-1"}
			}
		}
	} else {
		for _, pwd := range []string{c.UserPassword, c.OwnerPassword} {
			if _, err := unicodePassword(pwd); err != nil {
				return &ConfigError{Reason: err.Error()}
			}
		}
	}
	return nil
}

func (c Config) keyLength() int {
	if c.KeyLength == 0 {
		return 128
	}
	return c.KeyLength
}

// PermissionsValue builds the /P entry for the given permissions.
func PermissionsValue(p raw.Permissions) int32 {
	v := uint32(0xFFFFF0C0)
	set := func(on bool, bit uint) {
		if on {
			v |= 1 << (bit - 1)
		}
	}
	set(p.Print, 3)
	set(p.Modify, 4)
	set(p.Copy, 5)
	set(p.ModifyAnnotations, 6)
	set(p.FillForms, 9)
	set(p.ExtractAccessible, 10)
	set(p.Assemble, 11)
	set(p.PrintHighQuality, 12)
	return int32(v)
}

// PermissionsFromValue decodes a /P entry.
func PermissionsFromValue(p int32) raw.Permissions {
	bit := func(n uint) bool { return uint32(p)&(1<<(n-1)) != 0 }
	return raw.Permissions{
		Print:             bit(3),
		Modify:            bit(4),
		Copy:              bit(5),
		ModifyAnnotations: bit(6),
		FillForms:         bit(9),
		ExtractAccessible: bit(10),
		Assemble:          bit(11),
		PrintHighQuality:  bit(12),
	}
}

// NewEncryptor derives the keys for cfg and returns an authenticated
// handler together with the Encrypt dictionary to place in the trailer.
// fileID is the first element of the trailer /ID array.
func NewEncryptor(cfg Config, fileID []byte) (Handler, *raw.DictObj, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	owner := cfg.OwnerPassword
	if owner == "" {
		buf := make([]byte, 16)
		if _, err := rand.Read(buf); err != nil {
			return nil, nil, err
		}
		owner = hex.EncodeToString(buf)
	}
	bits := cfg.keyLength()
	h := &standardHandler{
		kp: keyParams{
			keyBytes:    bits / 8,
			p:           PermissionsValue(cfg.Permissions),
			id:          fileID,
			encryptMeta: !cfg.PlainMetadata,
		},
		filterAlgos: map[string]cryptAlgo{"Identity": algoNone},
	}
	enc := raw.Dict()
	enc.Put("Filter", raw.NameLiteral("Standard"))
	enc.Put("Length", raw.NumberInt(int64(bits)))
	enc.Put("P", raw.NumberInt(int64(h.kp.p)))

	switch {
	case bits == 256:
		h.v, h.kp.r = 5, 6
		if err := h.initRev6(cfg.UserPassword, owner, enc); err != nil {
			return nil, nil, err
		}
	case bits == 128 && cfg.Cipher == CipherAES:
		h.v, h.kp.r = 4, 4
		h.initLegacy(cfg.UserPassword, owner, enc)
	case bits == 128:
		h.v, h.kp.r = 2, 3
		h.initLegacy(cfg.UserPassword, owner, enc)
	default:
		h.v, h.kp.r = 1, 2
		h.initLegacy(cfg.UserPassword, owner, enc)
	}
	h.filterAlgos["StdCF"] = h.streamAlgo
	enc.Put("V", raw.NumberInt(int64(h.v)))
	enc.Put("R", raw.NumberInt(int64(h.kp.r)))
	if h.v >= 4 {
		cfm := "AESV2"
		if h.v == 5 {
			cfm = "AESV3"
		}
		std := raw.Dict()
		std.Put("Type", raw.NameLiteral("CryptFilter"))
		std.Put("CFM", raw.NameLiteral(cfm))
		std.Put("AuthEvent", raw.NameLiteral("DocOpen"))
		std.Put("Length", raw.NumberInt(int64(bits/8)))
		cf := raw.Dict()
		cf.Put("StdCF", std)
		enc.Put("CF", cf)
		enc.Put("StmF", raw.NameLiteral("StdCF"))
		enc.Put("StrF", raw.NameLiteral("StdCF"))
		if cfg.PlainMetadata {
			enc.Put("EncryptMetadata", raw.Bool(false))
		}
	}
	return h, enc, nil
}

func (h *standardHandler) initLegacy(user, owner string, enc *raw.DictObj) {
	// Validate has already checked both passwords encode.
	pu, _ := legacyPassword(user)
	po, _ := legacyPassword(owner)
	h.kp.o = computeO(h.kp, pu, po)
	h.key = fileKey(h.kp, pu)
	h.u = computeU(h.kp, h.key)
	h.streamAlgo, h.stringAlgo = algoRC4, algoRC4
	if h.kp.r == 4 {
		h.streamAlgo, h.stringAlgo = algoAES, algoAES
	}
	enc.Put("O", raw.Str(h.kp.o))
	enc.Put("U", raw.Str(h.u))
}

func (h *standardHandler) initRev6(user, owner string, enc *raw.DictObj) error {
	pu, _ := unicodePassword(user)
	po, _ := unicodePassword(owner)
	h.key = make([]byte, 32)
	if _, err := rand.Read(h.key); err != nil {
		return err
	}
	var err error
	if h.u, h.ue, err = sealKey(pu, nil, h.key); err != nil {
		return err
	}
	if h.kp.o, h.oe, err = sealKey(po, h.u, h.key); err != nil {
		return err
	}
	if h.perms, err = computePerms(h.key, h.kp.p, h.kp.encryptMeta); err != nil {
		return err
	}
	h.streamAlgo, h.stringAlgo = algoAES, algoAES
	enc.Put("O", raw.Str(h.kp.o))
	enc.Put("U", raw.Str(h.u))
	enc.Put("OE", raw.Str(h.oe))
	enc.Put("UE", raw.Str(h.ue))
	enc.Put("Perms", raw.Str(h.perms))
	return nil
}
