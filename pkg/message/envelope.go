package message

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// envelopeVersion guards the wire format; bump on any incompatible change.
const envelopeVersion = 1

// ErrTruncatedEnvelope means the buffer ended before a declared field could
// be fully read.
var ErrTruncatedEnvelope = errors.New("message: truncated packet-payload envelope")

// ErrUnsupportedEnvelopeVersion means the leading version byte does not
// match any version this codec understands.
var ErrUnsupportedEnvelopeVersion = errors.New("message: unsupported packet-payload envelope version")

func putString(buf *bytes.Buffer, s string) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := readFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	n, err := r.Read(b)
	if err != nil || n != len(b) {
		return n, ErrTruncatedEnvelope
	}
	return n, nil
}

// EncodePacketPayload renders a SignedMessage as the compact binary
// envelope carried in a routed packet's data field. The encoding is
// byte-stable: tags and tag elements are written in order, with no
// reordering or normalization, so decode(encode(m)) == m for any valid m.
func EncodePacketPayload(msg *SignedMessage) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("message: cannot encode nil message")
	}

	var buf bytes.Buffer
	buf.WriteByte(envelopeVersion)

	putString(&buf, msg.ID)
	putString(&buf, msg.AuthorKey)

	var createdAtBuf [8]byte
	binary.BigEndian.PutUint64(createdAtBuf[:], uint64(msg.CreatedAt))
	buf.Write(createdAtBuf[:])

	var kindBuf [2]byte
	binary.BigEndian.PutUint16(kindBuf[:], msg.Kind)
	buf.Write(kindBuf[:])

	var tagCountBuf [4]byte
	binary.BigEndian.PutUint32(tagCountBuf[:], uint32(len(msg.Tags)))
	buf.Write(tagCountBuf[:])
	for _, tag := range msg.Tags {
		var elemCountBuf [4]byte
		binary.BigEndian.PutUint32(elemCountBuf[:], uint32(len(tag)))
		buf.Write(elemCountBuf[:])
		for _, elem := range tag {
			putString(&buf, elem)
		}
	}

	putString(&buf, msg.Content)
	putString(&buf, msg.Signature)

	return buf.Bytes(), nil
}

// DecodePacketPayload parses the binary envelope produced by
// EncodePacketPayload back into a SignedMessage.
func DecodePacketPayload(data []byte) (*SignedMessage, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, ErrTruncatedEnvelope
	}
	if version != envelopeVersion {
		return nil, fmt.Errorf("%w: got %d", ErrUnsupportedEnvelopeVersion, version)
	}

	id, err := readString(r)
	if err != nil {
		return nil, err
	}
	authorKey, err := readString(r)
	if err != nil {
		return nil, err
	}

	var createdAtBuf [8]byte
	if _, err := readFull(r, createdAtBuf[:]); err != nil {
		return nil, err
	}
	createdAt := int64(binary.BigEndian.Uint64(createdAtBuf[:]))

	var kindBuf [2]byte
	if _, err := readFull(r, kindBuf[:]); err != nil {
		return nil, err
	}
	kind := binary.BigEndian.Uint16(kindBuf[:])

	var tagCountBuf [4]byte
	if _, err := readFull(r, tagCountBuf[:]); err != nil {
		return nil, err
	}
	tagCount := binary.BigEndian.Uint32(tagCountBuf[:])

	tags := make([]Tag, 0, tagCount)
	for i := uint32(0); i < tagCount; i++ {
		var elemCountBuf [4]byte
		if _, err := readFull(r, elemCountBuf[:]); err != nil {
			return nil, err
		}
		elemCount := binary.BigEndian.Uint32(elemCountBuf[:])
		tag := make(Tag, 0, elemCount)
		for j := uint32(0); j < elemCount; j++ {
			elem, err := readString(r)
			if err != nil {
				return nil, err
			}
			tag = append(tag, elem)
		}
		tags = append(tags, tag)
	}

	content, err := readString(r)
	if err != nil {
		return nil, err
	}
	signature, err := readString(r)
	if err != nil {
		return nil, err
	}

	return &SignedMessage{
		ID:        id,
		AuthorKey: authorKey,
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
		Signature: signature,
	}, nil
}
