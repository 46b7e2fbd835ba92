package store

import (
	"encoding/json"
	"fmt"

	"github.com/codesapienbe/jobops/internal/crypto"
	"github.com/codesapienbe/jobops/internal/schema"
)

// Stored-form marker fields. A record is either fully plaintext or carries
// exactly these two fields next to its plaintext index fields.
const (
	markerField   = "encrypted"
	envelopeField = "envelope"
)

// codec converts between the logical form of a record and its stored form.
// With no active key the two forms are identical; with one, payload fields are
// sealed into an envelope and only index fields stay readable.
type codec struct {
	session *crypto.Session
}

func (c *codec) split(table schema.Table, rec Record) (index, payload Record) {
	index = make(Record)
	payload = make(Record)
	for k, v := range rec {
		if table.IsIndexField(k) {
			index[k] = v
			continue
		}
		payload[k] = v
	}
	return index, payload
}

func (c *codec) prepareForStore(table schema.Table, rec Record) (Record, error) {
	if !c.session.Active() {
		return rec, nil
	}

	key, err := c.session.Key()
	if err != nil {
		return nil, err
	}

	index, payload := c.split(table, rec)
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload for %s: %w", table, err)
	}
	env, err := crypto.Seal(key, raw)
	if err != nil {
		return nil, fmt.Errorf("encrypt payload for %s: %w", table, err)
	}

	stored := make(Record, len(index)+2)
	for k, v := range index {
		stored[k] = v
	}
	stored[markerField] = true
	stored[envelopeField] = env
	return stored, nil
}

func (c *codec) reconstruct(table schema.Table, stored Record) (Record, error) {
	if !isEncryptedStored(stored) {
		return stored, nil
	}

	env, ok := crypto.EnvelopeFromValue(stored[envelopeField])
	if !ok {
		return nil, fmt.Errorf("%w: record in %s carries the encrypted marker but no envelope", crypto.ErrDecryptionFailed, table)
	}

	key, err := c.session.Key()
	if err != nil {
		return nil, err
	}

	raw, err := env.Open(key)
	if err != nil {
		return nil, err
	}
	var payload Record
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: payload of record in %s is not valid json", crypto.ErrDecryptionFailed, table)
	}

	// Index fields are authoritative on collision.
	rec := make(Record, len(payload)+len(stored))
	for k, v := range payload {
		rec[k] = v
	}
	for k, v := range stored {
		if k == markerField || k == envelopeField {
			continue
		}
		rec[k] = v
	}
	return rec, nil
}

func isEncryptedStored(stored Record) bool {
	marker, ok := stored[markerField].(bool)
	return ok && marker
}
