package security

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sfdeloach/pdf-tools/ir/raw"
)

func reopen(t *testing.T, enc *raw.DictObj, id []byte) Handler {
	t.Helper()
	h, err := (&HandlerBuilder{}).WithEncryptDict(enc).WithFileID(id).Build()
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	return h
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	id := []byte("0123456789abcdef")
	plain := []byte("BT /F1 12 Tf (secret page) Tj ET")
	cases := []struct {
		name string
		cfg  Config
		v, r int64
	}{
		{"rc4-40", Config{UserPassword: "user", OwnerPassword: "owner", KeyLength: 40}, 1, 2},
		{"rc4-128", Config{UserPassword: "user", OwnerPassword: "owner", KeyLength: 128}, 2, 3},
		{"aes-128", Config{UserPassword: "user", OwnerPassword: "owner", KeyLength: 128, Cipher: CipherAES}, 4, 4},
		{"aes-256", Config{UserPassword: "user", OwnerPassword: "owner", KeyLength: 256}, 5, 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, enc, err := NewEncryptor(tc.cfg, id)
			if err != nil {
				t.Fatalf("new encryptor: %v", err)
			}
			if got := intVal(enc, "V", 0); got != tc.v {
				t.Fatalf("V = %d, want %d", got, tc.v)
			}
			if got := intVal(enc, "R", 0); got != tc.r {
				t.Fatalf("R = %d, want %d", got, tc.r)
			}
			ct, err := w.Encrypt(7, 0, plain, DataClassStream)
			if err != nil {
				t.Fatalf("encrypt: %v", err)
			}
			if bytes.Equal(ct, plain) {
				t.Fatalf("ciphertext equals plaintext")
			}
			str, err := w.Encrypt(7, 0, []byte("title"), DataClassString)
			if err != nil {
				t.Fatalf("encrypt string: %v", err)
			}

			for _, pwd := range []string{"user", "owner"} {
				h := reopen(t, enc, id)
				if err := h.Authenticate(pwd); err != nil {
					t.Fatalf("authenticate %q: %v", pwd, err)
				}
				got, err := h.Decrypt(7, 0, ct, DataClassStream)
				if err != nil {
					t.Fatalf("decrypt: %v", err)
				}
				if !bytes.Equal(got, plain) {
					t.Fatalf("decrypt = %q, want %q", got, plain)
				}
				s, err := h.Decrypt(7, 0, str, DataClassString)
				if err != nil || string(s) != "title" {
					t.Fatalf("decrypt string = %q, %v", s, err)
				}
			}

			h := reopen(t, enc, id)
			if err := h.Authenticate("wrong"); !errors.Is(err, ErrAuthentication) {
				t.Fatalf("wrong password error = %v, want ErrAuthentication", err)
			}
		})
	}
}

func TestEmptyUserPassword(t *testing.T) {
	id := []byte("id")
	_, enc, err := NewEncryptor(Config{KeyLength: 128}, id)
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}
	h := reopen(t, enc, id)
	if err := h.Authenticate(""); err != nil {
		t.Fatalf("empty password should open: %v", err)
	}
}

func TestObjectKeysDiffer(t *testing.T) {
	w, _, err := NewEncryptor(Config{UserPassword: "u", KeyLength: 128}, []byte("id"))
	if err != nil {
		t.Fatal(err)
	}
	a, _ := w.Encrypt(1, 0, []byte("same"), DataClassString)
	b, _ := w.Encrypt(2, 0, []byte("same"), DataClassString)
	if bytes.Equal(a, b) {
		t.Fatalf("different objects produced identical ciphertext")
	}
}

func TestConfigErrors(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"bad length", Config{KeyLength: 64}},
		{"aes 40", Config{KeyLength: 40, Cipher: CipherAES}},
		{"non latin password", Config{KeyLength: 128, UserPassword: "пароль"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := NewEncryptor(tc.cfg, nil)
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("error = %v, want *ConfigError", err)
			}
		})
	}
}

func TestUnicodePasswordWith256(t *testing.T) {
	id := []byte("id")
	_, enc, err := NewEncryptor(Config{KeyLength: 256, UserPassword: "пароль"}, id)
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}
	h := reopen(t, enc, id)
	if err := h.Authenticate("пароль"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
}

func TestPermissionsValue(t *testing.T) {
	p := raw.Permissions{Print: true, Copy: true}
	v := PermissionsValue(p)
	if v != -3884 {
		t.Fatalf("P = %d, want -3884", v)
	}
	if got := PermissionsFromValue(v); got != p {
		t.Fatalf("decoded %+v, want %+v", got, p)
	}
	if PermissionsValue(raw.AllPermissions()) != -4 {
		t.Fatalf("all permissions should give -4")
	}
}

func TestNoopHandler(t *testing.T) {
	h := NoopHandler()
	if h.IsEncrypted() {
		t.Fatal("noop handler reports encryption")
	}
	data := []byte("abc")
	got, _ := h.Decrypt(1, 0, data, DataClassStream)
	if !bytes.Equal(got, data) {
		t.Fatal("noop handler changed data")
	}
}

func TestUnsupportedFilter(t *testing.T) {
	enc := raw.Dict()
	enc.Put("Filter", raw.NameLiteral("Adobe.PubSec"))
	_, err := (&HandlerBuilder{}).WithEncryptDict(enc).Build()
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("error = %v, want ErrUnsupported", err)
	}
}
