package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Codec encodes scenes to bytes.
type Codec interface {
	Name() string
	// Ext is the file extension, dot included.
	Ext() string
	Encode(s *Scene) ([]byte, error)
	Decode(data []byte, s *Scene) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Ext() string  { return ".json" }

func (jsonCodec) Encode(s *Scene) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

func (jsonCodec) Decode(data []byte, s *Scene) error {
	return json.Unmarshal(data, s)
}

type yamlCodec struct{}

func (yamlCodec) Name() string { return "yaml" }
func (yamlCodec) Ext() string  { return ".yaml" }

func (yamlCodec) Encode(s *Scene) ([]byte, error) {
	return yaml.Marshal(s)
}

func (yamlCodec) Decode(data []byte, s *Scene) error {
	return yaml.Unmarshal(data, s)
}

// msgpackCodec writes zstd-compressed MessagePack.
type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }
func (msgpackCodec) Ext() string  { return ".msgpack.zst" }

var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) { return zstd.NewWriter(nil) })
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) { return zstd.NewReader(nil) })
)

func (msgpackCodec) Encode(s *Scene) ([]byte, error) {
	data, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("msgpack encoding failed: %w", err)
	}
	enc, err := zstdEncoder()
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	return enc.EncodeAll(data, nil), nil
}

func (msgpackCodec) Decode(data []byte, s *Scene) error {
	dec, err := zstdDecoder()
	if err != nil {
		return fmt.Errorf("zstd decoder: %w", err)
	}
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("decompression failed: %w", err)
	}
	if err := msgpack.Unmarshal(raw, s); err != nil {
		return fmt.Errorf("msgpack decoding failed: %w", err)
	}
	return nil
}

var codecs = []Codec{jsonCodec{}, yamlCodec{}, msgpackCodec{}}

// CodecByName returns the codec called name ("json", "yaml" or "msgpack").
func CodecByName(name string) (Codec, error) {
	for _, c := range codecs {
		if c.Name() == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("unknown scene codec %q", name)
}

// CodecForPath picks a codec from a file name's extension. ".yml" is read as YAML.
func CodecForPath(path string) (Codec, bool) {
	base := filepath.Base(path)
	if strings.HasSuffix(base, ".yml") {
		return yamlCodec{}, true
	}
	for _, c := range codecs {
		if strings.HasSuffix(base, c.Ext()) {
			return c, true
		}
	}
	return nil, false
}

// Encode validates and encodes a scene.
func Encode(c Codec, s *Scene) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return c.Encode(s)
}

// Decode decodes a scene and checks its version.
func Decode(c Codec, data []byte) (*Scene, error) {
	var s Scene
	if err := c.Decode(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse %s scene: %w", c.Name(), err)
	}
	if s.Version != SceneVersion {
		return nil, &VersionError{Got: s.Version}
	}
	return &s, nil
}
