package protocol

import "encoding/json"

// Serializer defines the contract for serializing and deserializing payloads
// that leave the process, such as book events published to a broker.
// This allows consumers to choose their preferred format (JSON, Protobuf, SBE, etc.).
type Serializer interface {
	// Marshal serializes a Go struct (e.g. match.BookLog) into bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes bytes into a Go struct.
	// v must be a pointer to the target struct.
	Unmarshal(data []byte, v any) error

	// ContentType names the encoding, e.g. for a message header.
	ContentType() string
}

// JSONSerializer is the default Serializer.
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONSerializer) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (JSONSerializer) ContentType() string {
	return "application/json"
}
