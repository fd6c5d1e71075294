package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"

	"github.com/xdg-go/stringprep"
	"golang.org/x/text/encoding/charmap"
)

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

var zeroIV = make([]byte, aes.BlockSize)

// legacyPassword encodes a password for revisions 2-4 and pads it to 32
// bytes. Characters outside Latin-1 cannot be represented.
func legacyPassword(pwd string) ([]byte, error) {
	enc, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(pwd))
	if err != nil {
		return nil, fmt.Errorf("password not representable: %w", err)
	}
	padded := make([]byte, 32)
	n := copy(padded, enc)
	copy(padded[n:], passwordPadding)
	return padded, nil
}

// unicodePassword normalises a password for revision 6.
func unicodePassword(pwd string) ([]byte, error) {
	prepped, err := stringprep.SASLprep.Prepare(pwd)
	if err != nil {
		return nil, fmt.Errorf("password rejected by SASLprep: %w", err)
	}
	buf := []byte(prepped)
	if len(buf) > 127 {
		buf = buf[:127]
	}
	return buf, nil
}

type keyParams struct {
	r           int
	keyBytes    int
	o           []byte
	p           int32
	id          []byte
	encryptMeta bool
}

// fileKey derives the file encryption key from a padded user password.
func fileKey(kp keyParams, paddedUser []byte) []byte {
	h := md5.New()
	h.Write(paddedUser)
	h.Write(kp.o)
	var pb [4]byte
	binary.LittleEndian.PutUint32(pb[:], uint32(kp.p))
	h.Write(pb[:])
	h.Write(kp.id)
	if kp.r >= 4 && !kp.encryptMeta {
		h.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	key := h.Sum(nil)
	if kp.r >= 3 {
		for i := 0; i < 50; i++ {
			h.Reset()
			h.Write(key[:kp.keyBytes])
			key = h.Sum(key[:0])
		}
	}
	return key[:kp.keyBytes]
}

func ownerKey(kp keyParams, paddedOwner []byte) []byte {
	sum := md5.Sum(paddedOwner)
	key := sum[:]
	if kp.r >= 3 {
		for i := 0; i < 50; i++ {
			s := md5.Sum(key[:kp.keyBytes])
			key = s[:]
		}
	}
	return key[:kp.keyBytes]
}

func computeO(kp keyParams, paddedUser, paddedOwner []byte) []byte {
	key := ownerKey(kp, paddedOwner)
	out := rc4XOR(key, paddedUser)
	if kp.r >= 3 {
		tmp := make([]byte, len(key))
		for i := byte(1); i <= 19; i++ {
			for j := range tmp {
				tmp[j] = key[j] ^ i
			}
			out = rc4XOR(tmp, out)
		}
	}
	return out
}

func computeU(kp keyParams, key []byte) []byte {
	if kp.r == 2 {
		return rc4XOR(key, passwordPadding)
	}
	h := md5.New()
	h.Write(passwordPadding)
	h.Write(kp.id)
	u := rc4XOR(key, h.Sum(nil))
	tmp := make([]byte, len(key))
	for i := byte(1); i <= 19; i++ {
		for j := range tmp {
			tmp[j] = key[j] ^ i
		}
		u = rc4XOR(tmp, u)
	}
	return append(u[:16], make([]byte, 16)...)
}

func checkUser(kp keyParams, u, paddedUser []byte) ([]byte, bool) {
	key := fileKey(kp, paddedUser)
	want := computeU(kp, key)
	if kp.r == 2 {
		return key, len(u) >= 32 && bytes.Equal(want, u[:32])
	}
	return key, len(u) >= 16 && bytes.Equal(want[:16], u[:16])
}

// userFromOwner recovers the padded user password stored in O.
func userFromOwner(kp keyParams, o, paddedOwner []byte) []byte {
	key := ownerKey(kp, paddedOwner)
	buf := make([]byte, 32)
	copy(buf, o)
	if kp.r == 2 {
		return rc4XOR(key, buf)
	}
	tmp := make([]byte, len(key))
	for i := 19; i >= 0; i-- {
		for j := range tmp {
			tmp[j] = key[j] ^ byte(i)
		}
		buf = rc4XOR(tmp, buf)
	}
	return buf
}

// hash2B is the iterated hash of revision 6.
func hash2B(pwd, salt, udata []byte) []byte {
	h := sha256.New()
	h.Write(pwd)
	h.Write(salt)
	h.Write(udata)
	k := h.Sum(nil)

	e := make([]byte, 0, 64*(len(pwd)+64+len(udata)))
	for i := 0; i < 64 || int(e[len(e)-1]) > i-32; i++ {
		e = e[:0]
		for j := 0; j < 64; j++ {
			e = append(e, pwd...)
			e = append(e, k...)
			e = append(e, udata...)
		}
		block, _ := aes.NewCipher(k[:16])
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(e, e)

		sum := 0
		for _, b := range e[:16] {
			sum += int(b)
		}
		var next hash.Hash
		switch sum % 3 {
		case 0:
			next = sha256.New()
		case 1:
			next = sha512.New384()
		default:
			next = sha512.New()
		}
		next.Write(e)
		k = next.Sum(nil)
	}
	return k[:32]
}

// sealKey builds a 48 byte validation entry and the matching wrapped key.
func sealKey(pwd, udata, key []byte) (entry, wrapped []byte, err error) {
	salts := make([]byte, 16)
	if _, err := rand.Read(salts); err != nil {
		return nil, nil, err
	}
	entry = append(hash2B(pwd, salts[:8], udata), salts...)
	kek := hash2B(pwd, salts[8:], udata)
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, nil, err
	}
	wrapped = make([]byte, 32)
	cipher.NewCBCEncrypter(block, zeroIV).CryptBlocks(wrapped, key)
	return entry, wrapped, nil
}

func unsealKey(pwd, udata, entry, wrapped []byte) ([]byte, bool) {
	if len(entry) < 48 || len(wrapped) < 32 {
		return nil, false
	}
	if !bytes.Equal(hash2B(pwd, entry[32:40], udata), entry[:32]) {
		return nil, false
	}
	kek := hash2B(pwd, entry[40:48], udata)
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, false
	}
	key := make([]byte, 32)
	cipher.NewCBCDecrypter(block, zeroIV).CryptBlocks(key, wrapped[:32])
	return key, true
}

func computePerms(key []byte, p int32, encryptMeta bool) ([]byte, error) {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf, uint32(p))
	buf[4], buf[5], buf[6], buf[7] = 0xFF, 0xFF, 0xFF, 0xFF
	buf[8] = 'T'
	if !encryptMeta {
		buf[8] = 'F'
	}
	copy(buf[9:], "adb")
	if _, err := rand.Read(buf[12:]); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	block.Encrypt(buf, buf)
	return buf, nil
}

func checkPerms(key, perms []byte, p int32) bool {
	if len(perms) < 16 {
		return false
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return false
	}
	buf := make([]byte, 16)
	block.Decrypt(buf, perms[:16])
	return string(buf[9:12]) == "adb" && int32(binary.LittleEndian.Uint32(buf)) == p
}

// objectKey derives the per-object key for revisions 2-4.
func objectKey(fileKey []byte, num, gen int, aesSalt bool) []byte {
	h := md5.New()
	h.Write(fileKey)
	h.Write([]byte{byte(num), byte(num >> 8), byte(num >> 16), byte(gen), byte(gen >> 8)})
	if aesSalt {
		h.Write([]byte("sAlT"))
	}
	n := len(fileKey) + 5
	if n > 16 {
		n = 16
	}
	return h.Sum(nil)[:n]
}

func rc4XOR(key, data []byte) []byte {
	out := make([]byte, len(data))
	c, err := rc4.NewCipher(key)
	if err != nil {
		return out
	}
	c.XORKeyStream(out, data)
	return out
}

func aesEncrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	pad := aes.BlockSize - len(data)%aes.BlockSize
	out := make([]byte, aes.BlockSize+len(data)+pad)
	iv := out[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	plain := out[aes.BlockSize:]
	copy(plain, data)
	for i := len(data); i < len(plain); i++ {
		plain[i] = byte(pad)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(plain, plain)
	return out, nil
}

var errCiphertext = errors.New("malformed AES ciphertext")

func aesDecrypt(key, data []byte) ([]byte, error) {
	if len(data) < 2*aes.BlockSize || len(data)%aes.BlockSize != 0 {
		// An empty string encrypts to the IV plus one padding block.
		if len(data) == aes.BlockSize {
			return nil, nil
		}
		return nil, errCiphertext
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data)-aes.BlockSize)
	cipher.NewCBCDecrypter(block, data[:aes.BlockSize]).CryptBlocks(out, data[aes.BlockSize:])
	pad := int(out[len(out)-1])
	if pad == 0 || pad > aes.BlockSize {
		return nil, errCiphertext
	}
	return out[:len(out)-pad], nil
}
