package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

type protobufCodec struct{}

func (protobufCodec) Marshal(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("codec: value must implement proto.Message, got %T", v)
	}
	return proto.Marshal(msg)
}

func (protobufCodec) Unmarshal(data []byte, v any) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("codec: value must implement proto.Message, got %T", v)
	}
	return proto.Unmarshal(data, msg)
}

func (protobufCodec) ContentType() string { return "application/x-protobuf" }

func (protobufCodec) Name() string { return "protobuf" }
