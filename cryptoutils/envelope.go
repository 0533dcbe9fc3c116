package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	jose "github.com/go-jose/go-jose/v4"
)

const (
	envelopeKeySize = 32
	envelopeIVSize  = 12
	gcmTagSize      = 16
)

// ErrAuthFailed is returned when envelope decryption detects tampering.
var ErrAuthFailed = errors.New("envelope authentication failed")

// EncryptEnvelope encrypts plaintext for the holder of the given RSA public
// key using the length-prefixed binary framing:
//
//	[len(wrappedKey) u32be][wrappedKey][len(iv) u32be][iv][ciphertext||tag]
//
// The whole frame is returned base64-encoded as a single blob.
func EncryptEnvelope(pub *rsa.PublicKey, plaintext []byte) (string, error) {
	key := make([]byte, envelopeKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate data key: %w", err)
	}

	iv := make([]byte, envelopeIVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}
	ciphertext := aesGCM.Seal(nil, iv, plaintext, nil)

	wrappedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return "", fmt.Errorf("failed to wrap data key: %w", err)
	}

	frame := make([]byte, 0, 4+len(wrappedKey)+4+len(iv)+len(ciphertext))
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(wrappedKey)))
	frame = append(frame, wrappedKey...)
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(iv)))
	frame = append(frame, iv...)
	frame = append(frame, ciphertext...)

	return base64.StdEncoding.EncodeToString(frame), nil
}

// DecryptEnvelope reverses EncryptEnvelope. Any tag mismatch fails closed
// with ErrAuthFailed; tampered plaintext is never returned.
func DecryptEnvelope(priv *rsa.PrivateKey, envelope string) ([]byte, error) {
	frame, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}

	if len(frame) < 4 {
		return nil, errors.New("envelope too short")
	}
	keyLen := uint64(binary.BigEndian.Uint32(frame[0:4]))
	if uint64(len(frame)) < 4+keyLen+4 {
		return nil, errors.New("envelope has invalid framing")
	}
	wrappedKey := frame[4 : 4+keyLen]

	rest := frame[4+keyLen:]
	ivLen := uint64(binary.BigEndian.Uint32(rest[0:4]))
	if uint64(len(rest)) < 4+ivLen+gcmTagSize {
		return nil, errors.New("envelope has invalid framing")
	}
	iv := rest[4 : 4+ivLen]
	ciphertext := rest[4+ivLen:]

	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrappedKey, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}

	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCMWithNonceSize(aesBlock, len(iv))
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := aesGCM.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// EncryptJWE encrypts plaintext as a compact JWE token with alg=RSA-OAEP-256
// and enc=A256GCM. Extra protected headers (for example an app identifier)
// are carried verbatim in the token header.
func EncryptJWE(pub *rsa.PublicKey, plaintext []byte, extraHeaders map[string]interface{}) (string, error) {
	opts := &jose.EncrypterOptions{}
	for k, v := range extraHeaders {
		opts = opts.WithHeader(jose.HeaderKey(k), v)
	}

	encrypter, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: jose.RSA_OAEP_256, Key: pub},
		opts,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create encrypter: %w", err)
	}

	obj, err := encrypter.Encrypt(plaintext)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt payload: %w", err)
	}
	return obj.CompactSerialize()
}

// DecryptJWE reverses EncryptJWE. Only RSA-OAEP-256/A256GCM tokens are
// accepted; anything else, or a failed tag check, returns ErrAuthFailed.
func DecryptJWE(priv *rsa.PrivateKey, token string) ([]byte, error) {
	obj, err := jose.ParseEncrypted(token,
		[]jose.KeyAlgorithm{jose.RSA_OAEP_256},
		[]jose.ContentEncryption{jose.A256GCM},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	plaintext, err := obj.Decrypt(priv)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}
