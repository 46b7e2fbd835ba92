package crypto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	AlgAESGCM       = "AES-GCM"
	EnvelopeVersion = 1
)

var ErrDecryptionFailed = errors.New("decryption failed")

// Envelope is the wire form of an encrypted payload. IV and Data are
// standard-base64 encodings of the nonce and the ciphertext (tag included).
type Envelope struct {
	Alg  string `json:"alg"`
	V    int    `json:"v"`
	IV   string `json:"iv"`
	Data string `json:"data"`
}

func Seal(key, plaintext []byte) (Envelope, error) {
	nonce, err := randomNonce(GCMNonceSize)
	if err != nil {
		return Envelope{}, err
	}
	ciphertext, err := SealAESGCM(key, nonce, plaintext)
	if err != nil {
		return Envelope{}, fmt.Errorf("seal envelope: %w", err)
	}
	return Envelope{
		Alg:  AlgAESGCM,
		V:    EnvelopeVersion,
		IV:   base64.StdEncoding.EncodeToString(nonce),
		Data: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

func (e Envelope) Open(key []byte) ([]byte, error) {
	if e.Alg != AlgAESGCM {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrDecryptionFailed, e.Alg)
	}
	if e.V != EnvelopeVersion {
		return nil, fmt.Errorf("%w: unsupported envelope version %d", ErrDecryptionFailed, e.V)
	}
	nonce, err := base64.StdEncoding.DecodeString(e.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed iv", ErrDecryptionFailed)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(e.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed data", ErrDecryptionFailed)
	}
	plaintext, err := OpenAESGCM(key, nonce, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// EnvelopeFromValue recognizes an envelope in a decoded JSON value. It accepts
// both the struct form (before marshalling) and the map form (after a
// marshal/unmarshal round trip); anything else reports false.
func EnvelopeFromValue(v any) (Envelope, bool) {
	if e, ok := v.(Envelope); ok {
		return e, e.Alg == AlgAESGCM
	}
	m, ok := v.(map[string]any)
	if !ok {
		return Envelope{}, false
	}
	alg, ok := m["alg"].(string)
	if !ok || alg != AlgAESGCM {
		return Envelope{}, false
	}
	iv, ok := m["iv"].(string)
	if !ok {
		return Envelope{}, false
	}
	data, ok := m["data"].(string)
	if !ok {
		return Envelope{}, false
	}
	e := Envelope{Alg: alg, IV: iv, Data: data}
	switch n := m["v"].(type) {
	case float64:
		e.V = int(n)
	case int:
		e.V = n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			e.V = int(i)
		}
	}
	return e, true
}
