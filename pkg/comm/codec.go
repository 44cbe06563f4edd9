package comm

import (
	"encoding/binary"
	"fmt"
)

// Wire layout of a message (all little-endian):
//
//	tag   uint64
//	count uint64
//	data  count * int64
const frameHeaderSize = 16

func encodeMessage(msg Message) []byte {
	buf := make([]byte, frameHeaderSize+8*len(msg.Data))
	binary.LittleEndian.PutUint64(buf[0:8], msg.Tag)
	binary.LittleEndian.PutUint64(buf[8:16], (uint64)(len(msg.Data)))

	pos := frameHeaderSize
	for _, v := range msg.Data {
		binary.LittleEndian.PutUint64(buf[pos:pos+8], (uint64)(v))
		pos += 8
	}
	return buf
}

func decodeMessage(buf []byte) (Message, error) {
	if len(buf) < frameHeaderSize {
		return Message{}, fmt.Errorf("Frame too short: %v bytes", len(buf))
	}

	tag := binary.LittleEndian.Uint64(buf[0:8])
	count := binary.LittleEndian.Uint64(buf[8:16])
	payload := len(buf) - frameHeaderSize
	if payload%8 != 0 || (uint64)(payload/8) != count {
		return Message{}, fmt.Errorf("Frame claims %v values but carries %v bytes", count, payload)
	}

	data := make([]int64, count)
	pos := frameHeaderSize
	for i := range data {
		data[i] = (int64)(binary.LittleEndian.Uint64(buf[pos : pos+8]))
		pos += 8
	}
	return Message{Tag: tag, Data: data}, nil
}
