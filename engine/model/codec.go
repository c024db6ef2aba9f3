package model

import (
	"encoding/json"
	"fmt"

	"github.com/compozy/modelstore/engine/core"
	"github.com/compozy/modelstore/engine/query"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// encode serializes record as a document, assigning a new id when the
// record has none. It returns the id and the document.
func encode(record any) (string, []byte, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return "", nil, core.NewValidationError("create", fmt.Errorf("encode record: %w", err))
	}
	if !gjson.ValidBytes(raw) || raw[0] != '{' {
		return "", nil, core.NewValidationError("create", fmt.Errorf("record must encode to a JSON object"))
	}
	idValue := gjson.GetBytes(raw, query.IDField)
	switch {
	case idValue.Type == gjson.String && idValue.String() != "":
		return idValue.String(), raw, nil
	case idValue.Exists() && idValue.Type != gjson.String && idValue.Type != gjson.Null:
		return "", nil, core.NewValidationError("create", fmt.Errorf("document id must be a string"))
	}
	id, err := core.NewID()
	if err != nil {
		return "", nil, core.NewStoreError("create", err)
	}
	raw, err = sjson.SetBytes(raw, query.IDField, id.String())
	if err != nil {
		return "", nil, core.NewValidationError("create", fmt.Errorf("assign id: %w", err))
	}
	return id.String(), raw, nil
}

func decode[T any](op string, raw []byte) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, core.NewDecodeError(op, err)
	}
	return out, nil
}

func decodePtr[T any](op string, raw []byte) (*T, error) {
	if raw == nil {
		return nil, nil
	}
	out, err := decode[T](op, raw)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func decodeAll[T any](op string, docs []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, raw := range docs {
		v, err := decode[T](op, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
