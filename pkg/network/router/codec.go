package router

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
)

// 帧格式：
//
//	uint32 BE 帧体长度 | uint16 BE 分片数 | (uint32 BE 分片长度 | 分片字节)*
const (
	lengthSize    = 4
	countSize     = 2
	partLenSize   = 4
	maxPartsCount = 1<<16 - 1
)

// AppendFrame 将 parts 编码为一帧追加到 dst
func AppendFrame(dst []byte, parts ...[]byte) ([]byte, error) {
	if len(parts) == 0 {
		return dst, ErrEmptyMessage
	}
	if len(parts) > maxPartsCount {
		return dst, errors.Wrapf(ErrInvalidFrame, "%d parts", len(parts))
	}

	body := countSize
	for _, p := range parts {
		body += partLenSize + len(p)
	}

	dst = binary.BigEndian.AppendUint32(dst, uint32(body))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(parts)))
	for _, p := range parts {
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(p)))
		dst = append(dst, p...)
	}
	return dst, nil
}

// DecodeFrame 从 buf 头部解出一帧，返回分片（已拷贝）与消耗的字节数。
// 数据不足一帧时返回 ErrIncompleteFrame。
func DecodeFrame(buf []byte, maxSize int) ([][]byte, int, error) {
	if len(buf) < lengthSize {
		return nil, 0, ErrIncompleteFrame
	}
	body := int(binary.BigEndian.Uint32(buf))
	if maxSize > 0 && body > maxSize {
		return nil, 0, errors.Wrapf(ErrMessageTooBig, "%d > %d", body, maxSize)
	}
	if len(buf) < lengthSize+body {
		return nil, 0, ErrIncompleteFrame
	}
	parts, err := decodeBody(buf[lengthSize : lengthSize+body])
	if err != nil {
		return nil, 0, err
	}
	return parts, lengthSize + body, nil
}

// ReadFrame 从流中读取一帧
func ReadFrame(r io.Reader, maxSize int) ([][]byte, error) {
	var hdr [lengthSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	body := int(binary.BigEndian.Uint32(hdr[:]))
	if maxSize > 0 && body > maxSize {
		return nil, errors.Wrapf(ErrMessageTooBig, "%d > %d", body, maxSize)
	}
	buf := make([]byte, body)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "router: read frame body")
	}
	return decodeBody(buf)
}

func decodeBody(body []byte) ([][]byte, error) {
	if len(body) < countSize {
		return nil, errors.Wrap(ErrInvalidFrame, "missing part count")
	}
	n := int(binary.BigEndian.Uint16(body))
	if n == 0 {
		return nil, errors.Wrap(ErrInvalidFrame, "zero parts")
	}
	body = body[countSize:]

	parts := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if len(body) < partLenSize {
			return nil, errors.Wrapf(ErrInvalidFrame, "part %d: missing length", i)
		}
		l := int(binary.BigEndian.Uint32(body))
		body = body[partLenSize:]
		if l > len(body) {
			return nil, errors.Wrapf(ErrInvalidFrame, "part %d: length %d exceeds frame", i, l)
		}
		p := make([]byte, l)
		copy(p, body[:l])
		parts = append(parts, p)
		body = body[l:]
	}
	if len(body) != 0 {
		return nil, errors.Wrapf(ErrInvalidFrame, "%d trailing bytes", len(body))
	}
	return parts, nil
}
