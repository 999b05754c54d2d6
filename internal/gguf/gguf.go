// Package gguf reads the header and key/value metadata of GGUF weight
// files. Tensor data is never touched; the inference provider owns it.
package gguf

import (
	"errors"
	"fmt"
	"io"
	"os"
)

const magicGGUF = "GGUF"

// ErrNotGGUF is returned when a file does not start with the GGUF magic.
var ErrNotGGUF = errors.New("not a gguf file")

type ValueType uint32

const (
	TypeUint8   ValueType = 0
	TypeInt8    ValueType = 1
	TypeUint16  ValueType = 2
	TypeInt16   ValueType = 3
	TypeUint32  ValueType = 4
	TypeInt32   ValueType = 5
	TypeFloat32 ValueType = 6
	TypeBool    ValueType = 7
	TypeString  ValueType = 8
	TypeArray   ValueType = 9
	TypeUint64  ValueType = 10
	TypeInt64   ValueType = 11
	TypeFloat64 ValueType = 12
)

var valueTypeNames = [...]string{"u8", "i8", "u16", "i16", "u32", "i32", "f32", "bool", "string", "array", "u64", "i64", "f64"}

func (t ValueType) String() string {
	if int(t) < len(valueTypeNames) {
		return valueTypeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

type ArrayValue struct {
	ElemType ValueType
	Values   []any
}

type Value struct {
	Type  ValueType
	Value any
}

type Header struct {
	Version     uint32
	TensorCount uint64
	KVCount     uint64
}

// File is the parsed metadata section of a GGUF file.
type File struct {
	Path   string
	Header Header
	KV     map[string]Value
}

// Open parses the metadata of the GGUF file at path.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	gf, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	gf.Path = path
	return gf, nil
}

// Validate checks the magic and version without decoding metadata.
func Validate(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	r := newReader(f)
	if _, err := readHeader(r); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Read parses a GGUF header and its key/value section from rd.
func Read(rd io.Reader) (*File, error) {
	r := newReader(rd)
	hdr, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	kv := make(map[string]Value, min(hdr.KVCount, 1024))
	for i := range hdr.KVCount {
		key, err := r.str()
		if err != nil {
			return nil, fmt.Errorf("read key %d: %w", i, err)
		}
		vt, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("read value type for %s: %w", key, err)
		}
		val, err := readValue(r, ValueType(vt))
		if err != nil {
			return nil, fmt.Errorf("read value for %s: %w", key, err)
		}
		kv[key] = Value{Type: ValueType(vt), Value: val}
	}
	return &File{Header: hdr, KV: kv}, nil
}

func readHeader(r *reader) (Header, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r.r, magic); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrNotGGUF, err)
	}
	r.off += 4
	if string(magic) != magicGGUF {
		return Header{}, fmt.Errorf("%w: magic %q", ErrNotGGUF, magic)
	}
	version, err := r.u32()
	if err != nil {
		return Header{}, err
	}
	if version < 2 || version > 3 {
		return Header{}, fmt.Errorf("unsupported gguf version %d", version)
	}
	tensors, err := r.u64()
	if err != nil {
		return Header{}, err
	}
	kvs, err := r.u64()
	if err != nil {
		return Header{}, err
	}
	return Header{Version: version, TensorCount: tensors, KVCount: kvs}, nil
}

func readValue(r *reader, vtype ValueType) (any, error) {
	switch vtype {
	case TypeUint8:
		return r.u8()
	case TypeInt8:
		v, err := r.u8()
		return int8(v), err
	case TypeUint16:
		return r.u16()
	case TypeInt16:
		v, err := r.u16()
		return int16(v), err
	case TypeUint32:
		return r.u32()
	case TypeInt32:
		v, err := r.u32()
		return int32(v), err
	case TypeUint64:
		return r.u64()
	case TypeInt64:
		v, err := r.u64()
		return int64(v), err
	case TypeFloat32:
		return r.f32()
	case TypeFloat64:
		return r.f64()
	case TypeBool:
		v, err := r.u8()
		return v != 0, err
	case TypeString:
		return r.str()
	case TypeArray:
		et, err := r.u32()
		if err != nil {
			return nil, err
		}
		if ValueType(et) == TypeArray {
			return nil, errors.New("nested arrays are not supported")
		}
		count, err := r.u64()
		if err != nil {
			return nil, err
		}
		values := make([]any, 0, min(count, 1<<16))
		for range count {
			v, err := readValue(r, ValueType(et))
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return ArrayValue{ElemType: ValueType(et), Values: values}, nil
	default:
		return nil, fmt.Errorf("unsupported value type %d", uint32(vtype))
	}
}
