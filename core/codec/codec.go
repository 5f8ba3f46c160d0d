// Package codec encodes response bodies. The codec is picked from the
// request's Accept header.
package codec

import (
	"encoding/json"
	"errors"
	"mime"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// ErrUnsupportedCodec is returned by Lookup for an unknown media type.
var ErrUnsupportedCodec = errors.New("codec: unsupported media type")

// Codec defines the interface for encoding/decoding bodies
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error

	// ContentType is the media type written in the Content-Type header.
	ContentType() string
	Name() string
}

var (
	JSON     Codec = jsonCodec{}
	Protobuf Codec = protobufCodec{}
)

var byMediaType = map[string]Codec{
	"application/json":       JSON,
	"application/x-protobuf": Protobuf,
	"application/protobuf":   Protobuf,
}

// Lookup returns the codec for a media type (parameters are ignored).
func Lookup(mediaType string) (Codec, error) {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return nil, ErrUnsupportedCodec
	}
	if c, ok := byMediaType[mt]; ok {
		return c, nil
	}
	return nil, ErrUnsupportedCodec
}

// Negotiate returns the first codec named in an Accept header, in the
// order listed. JSON is the fallback.
func Negotiate(accept string) Codec {
	for _, part := range strings.Split(accept, ",") {
		if c, err := Lookup(strings.TrimSpace(part)); err == nil {
			return c
		}
	}
	return JSON
}

// jsonCodec uses the protobuf JSON mapping for proto messages.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	if msg, ok := v.(proto.Message); ok {
		return protojson.Marshal(msg)
	}
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if msg, ok := v.(proto.Message); ok {
		return protojson.Unmarshal(data, msg)
	}
	return json.Unmarshal(data, v)
}

func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Name() string { return "json" }
