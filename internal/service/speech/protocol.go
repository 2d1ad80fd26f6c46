package speech

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// 二进制帧协议：4 字节头 + 可选序号 + payload 长度 + payload。
const protocolVersion = 0b0001

type messageType uint8

const (
	fullClientRequest  messageType = 0b0001
	audioOnlyRequest   messageType = 0b0010
	fullServerResponse messageType = 0b1001
	serverAck          messageType = 0b1011
	serverError        messageType = 0b1111
)

type messageFlags uint8

const (
	noSequence       messageFlags = 0b0000
	positiveSequence messageFlags = 0b0001
	lastNoSequence   messageFlags = 0b0010
	negativeSequence messageFlags = 0b0011
)

type serialization uint8

const (
	rawSerialization  serialization = 0b0000
	jsonSerialization serialization = 0b0001
)

type compression uint8

const (
	noCompression   compression = 0b0000
	gzipCompression compression = 0b0001
)

// frame is one decoded protocol message.
type frame struct {
	Type          messageType
	Flags         messageFlags
	Serialization serialization
	Compression   compression
	Sequence      int32
	ErrorCode     uint32
	Payload       []byte
}

func (f *frame) hasSequence() bool {
	switch f.Flags {
	case positiveSequence, negativeSequence:
		return true
	}
	return false
}

// isLast 判断是否为最后一包。
func (f *frame) isLast() bool {
	return f.Flags == lastNoSequence || f.Flags == negativeSequence
}

func (f *frame) encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(protocolVersion<<4 | 0b0001) // header size in 4-byte words
	buf.WriteByte(byte(f.Type)<<4 | byte(f.Flags))
	buf.WriteByte(byte(f.Serialization)<<4 | byte(f.Compression))
	buf.WriteByte(0)

	word := make([]byte, 4)
	if f.hasSequence() {
		binary.BigEndian.PutUint32(word, uint32(f.Sequence))
		buf.Write(word)
	}
	if f.Type == serverError {
		binary.BigEndian.PutUint32(word, f.ErrorCode)
		buf.Write(word)
	}
	binary.BigEndian.PutUint32(word, uint32(len(f.Payload)))
	buf.Write(word)
	buf.Write(f.Payload)
	return buf.Bytes()
}

func decodeFrame(data []byte) (*frame, error) {
	r := bytes.NewReader(data)
	head := make([]byte, 4)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if v := head[0] >> 4; v != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", v)
	}
	// skip header extension words
	if extra := int(head[0]&0x0F)*4 - 4; extra > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(extra)); err != nil {
			return nil, fmt.Errorf("read extended header: %w", err)
		}
	}

	f := &frame{
		Type:          messageType(head[1] >> 4),
		Flags:         messageFlags(head[1] & 0x0F),
		Serialization: serialization(head[2] >> 4),
		Compression:   compression(head[2] & 0x0F),
	}

	var word uint32
	if f.hasSequence() {
		if err := binary.Read(r, binary.BigEndian, &word); err != nil {
			return nil, fmt.Errorf("read sequence: %w", err)
		}
		f.Sequence = int32(word)
	}
	if f.Type == serverError {
		if err := binary.Read(r, binary.BigEndian, &f.ErrorCode); err != nil {
			return nil, fmt.Errorf("read error code: %w", err)
		}
	}
	if err := binary.Read(r, binary.BigEndian, &word); err != nil {
		return nil, fmt.Errorf("read payload size: %w", err)
	}
	if int64(word) > int64(r.Len()) {
		return nil, fmt.Errorf("payload size %d exceeds frame (%d left)", word, r.Len())
	}
	f.Payload = make([]byte, word)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return f, nil
}

// newAudioFrame builds an audio chunk. The last chunk carries a negated sequence.
func newAudioFrame(chunk []byte, seq int32, last bool) *frame {
	flags := positiveSequence
	if last {
		flags, seq = negativeSequence, -seq
	}
	return &frame{Type: audioOnlyRequest, Flags: flags, Compression: gzipCompression, Sequence: seq, Payload: chunk}
}
