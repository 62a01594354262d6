package protocol

import "encoding/json"

// Serializer defines the contract for serializing and deserializing messages.
// This allows different teams to choose their preferred format (JSON, Protobuf, SBE, etc.)
// while interacting with the Order Process System.
type Serializer interface {
	// Marshal serializes a Go struct (e.g. NewOrderRequest) into bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes bytes into a Go struct.
	// v must be a pointer to the target struct.
	Unmarshal(data []byte, v any) error
}

// DefaultJSONSerializer is the default Serializer based on encoding/json.
type DefaultJSONSerializer struct{}

func (DefaultJSONSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (DefaultJSONSerializer) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// CodecName is the content-subtype the gRPC transport negotiates for these messages.
const CodecName = "json"

// Codec adapts a Serializer to the gRPC encoding.Codec contract.
type Codec struct {
	Serializer Serializer
}

// NewCodec returns a Codec over the default JSON serializer.
func NewCodec() *Codec {
	return &Codec{Serializer: DefaultJSONSerializer{}}
}

func (c *Codec) Marshal(v any) ([]byte, error) {
	return c.Serializer.Marshal(v)
}

func (c *Codec) Unmarshal(data []byte, v any) error {
	return c.Serializer.Unmarshal(data, v)
}

func (c *Codec) Name() string {
	return CodecName
}
