package boltstore

import (
	"bytes"
	"encoding/gob"

	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/crystal-mush/mushkit/pkg/scripts"
)

func init() {
	gob.Register(gamedb.Object{})
	gob.Register(scripts.Record{})
}

// encode serializes a value to bytes using gob.
func encode[T any](v *T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode deserializes gob bytes into a fresh T.
func decode[T any](data []byte) (*T, error) {
	var v T
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return nil, err
	}
	return &v, nil
}
