package genflow

import (
	"bytes"
	"encoding/json"

	"github.com/bytedance/sonic"
)

// Encoder serializes the stored task and product records, and the request and response
// bodies exchanged with the video service and the upload endpoint.
type Encoder interface {
	Encode(any) ([]byte, error)
	Decode([]byte, any) error
}

// JSONEncoder encodes with encoding/json and decodes with sonic. Remote responses are
// decoded far more often than records are written.
type JSONEncoder struct{}

// Encode marshals v without HTML escaping, so result and image URLs keep their
// query strings readable in Redis and in request bodies.
func (*JSONEncoder) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (*JSONEncoder) Decode(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}
