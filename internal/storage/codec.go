package storage

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes the workspace tree snapshot.
type Codec interface {
	Marshal(root *Node) ([]byte, error)
	Unmarshal(data []byte) (*Node, error)
}

type jsonCodec struct{}

func (jsonCodec) Marshal(root *Node) ([]byte, error) { return json.Marshal(root) }

func (jsonCodec) Unmarshal(data []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	n.fixup()
	return &n, nil
}

type msgpackCodec struct{}

func (msgpackCodec) Marshal(root *Node) ([]byte, error) { return msgpack.Marshal(root) }

func (msgpackCodec) Unmarshal(data []byte) (*Node, error) {
	var n Node
	if err := msgpack.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	n.fixup()
	return &n, nil
}

var (
	JSON    Codec = jsonCodec{}
	MsgPack Codec = msgpackCodec{}
)

// CodecByName returns the codec for "json" (or "") and "msgpack".
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return MsgPack, nil
	}
	return nil, fmt.Errorf("unknown snapshot codec %q", name)
}
