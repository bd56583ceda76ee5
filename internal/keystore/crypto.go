package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/collider/frost-wallet-node/internal/errs"
)

// Parameters are bit-exact compatibility requirements with a sibling
// browser-extension keystore — do not change without also changing
// the extension.
const (
	pbkdf2Iterations = 100000
	keySize          = 32 // AES-256
	saltSize         = 16
	nonceSize        = 12 // GCM standard
)

// blob is the binary layout embedded (base64-encoded) in a wallet file's
// Data field: salt || nonce || ciphertext.
type blob struct {
	salt       []byte
	nonce      []byte
	ciphertext []byte
}

func encrypt(plaintext, password []byte) (blob, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return blob{}, errs.Wrap(errs.CryptoDecode, "keystore.encrypt", err)
	}
	key := pbkdf2.Key(password, salt, pbkdf2Iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return blob{}, errs.Wrap(errs.CryptoDecode, "keystore.encrypt", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return blob{}, errs.Wrap(errs.CryptoDecode, "keystore.encrypt", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return blob{}, errs.Wrap(errs.CryptoDecode, "keystore.encrypt", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return blob{salt: salt, nonce: nonce, ciphertext: ciphertext}, nil
}

func decrypt(b blob, password []byte) ([]byte, error) {
	key := pbkdf2.Key(password, b.salt, pbkdf2Iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "keystore.decrypt", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "keystore.decrypt", err)
	}
	// GCM auth failure here almost always means the wrong password, not
	// corrupt ciphertext — classified as Storage per the error taxonomy's
	// "disk I/O or decryption failure (wrong password included)" kind.
	plaintext, err := gcm.Open(nil, b.nonce, b.ciphertext, nil)
	if err != nil {
		return nil, errs.New(errs.Storage, "keystore.decrypt")
	}
	return plaintext, nil
}

// encodeBlob/decodeBlob pack the salt||nonce||ciphertext layout into the
// single base64 string a wallet file's Data field carries.
func encodeBlob(b blob) string {
	raw := make([]byte, 0, len(b.salt)+len(b.nonce)+len(b.ciphertext))
	raw = append(raw, b.salt...)
	raw = append(raw, b.nonce...)
	raw = append(raw, b.ciphertext...)
	return base64.StdEncoding.EncodeToString(raw)
}

func decodeBlob(encoded string) (blob, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return blob{}, errs.Wrap(errs.CryptoDecode, "keystore.decodeBlob", err)
	}
	if len(raw) < saltSize+nonceSize {
		return blob{}, errs.New(errs.CryptoDecode, "keystore.decodeBlob")
	}
	return blob{
		salt:       raw[:saltSize],
		nonce:      raw[saltSize : saltSize+nonceSize],
		ciphertext: raw[saltSize+nonceSize:],
	}, nil
}
