// Package cryptoutils implements the hybrid envelope encryption used to
// protect private application configuration before it is published on-chain.
//
// A fresh random 256-bit AES key encrypts the payload under AES-256-GCM with
// a fresh 96-bit IV; the AES key is wrapped under the recipient's RSA public
// key with OAEP (SHA-256). Two interchangeable serializations are supported:
//
//   - a length-prefixed binary framing, base64-encoded as one blob
//     (EncryptEnvelope/DecryptEnvelope), and
//   - JWE compact serialization with alg=RSA-OAEP-256, enc=A256GCM and
//     arbitrary caller-supplied protected headers (EncryptJWE/DecryptJWE).
//
// Decryption fails closed on any tag mismatch; tampered ciphertext never
// yields plaintext.
package cryptoutils
