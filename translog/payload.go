package translog

import "encoding/binary"

// EncodeAppendPayload serializes an AppendPayload.
func EncodeAppendPayload(p AppendPayload) []byte {
	buf := make([]byte, 4+1+len(p.Keywords))
	binary.LittleEndian.PutUint32(buf[0:], p.UID)
	buf[4] = p.Flags
	copy(buf[5:], p.Keywords)

	return buf
}

// DecodeAppendPayload parses an AppendPayload. The returned Keywords
// slice aliases buf.
func DecodeAppendPayload(buf []byte) (AppendPayload, error) {
	if len(buf) < 5 {
		return AppendPayload{}, ErrShortRecord
	}

	return AppendPayload{
		UID:      binary.LittleEndian.Uint32(buf[0:]),
		Flags:    buf[4],
		Keywords: buf[5:],
	}, nil
}

// EncodeExpungePayload serializes an ExpungePayload.
func EncodeExpungePayload(p ExpungePayload) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf[0:], p.UID)

	return buf
}

// DecodeExpungePayload parses an ExpungePayload.
func DecodeExpungePayload(buf []byte) (ExpungePayload, error) {
	if len(buf) < 4 {
		return ExpungePayload{}, ErrShortRecord
	}

	return ExpungePayload{UID: binary.LittleEndian.Uint32(buf[0:])}, nil
}

// EncodeFlagUpdatePayload serializes a FlagUpdatePayload.
func EncodeFlagUpdatePayload(p FlagUpdatePayload) []byte {
	buf := make([]byte, 10)
	binary.LittleEndian.PutUint32(buf[0:], p.UID1)
	binary.LittleEndian.PutUint32(buf[4:], p.UID2)
	buf[8] = p.AddFlags
	buf[9] = p.RemoveFlags

	return buf
}

// DecodeFlagUpdatePayload parses a FlagUpdatePayload.
func DecodeFlagUpdatePayload(buf []byte) (FlagUpdatePayload, error) {
	if len(buf) < 10 {
		return FlagUpdatePayload{}, ErrShortRecord
	}

	return FlagUpdatePayload{
		UID1:        binary.LittleEndian.Uint32(buf[0:]),
		UID2:        binary.LittleEndian.Uint32(buf[4:]),
		AddFlags:    buf[8],
		RemoveFlags: buf[9],
	}, nil
}

// EncodeKeywordUpdatePayload serializes a KeywordUpdatePayload.
func EncodeKeywordUpdatePayload(p KeywordUpdatePayload) []byte {
	buf := make([]byte, 13)
	binary.LittleEndian.PutUint32(buf[0:], p.UID1)
	binary.LittleEndian.PutUint32(buf[4:], p.UID2)
	binary.LittleEndian.PutUint32(buf[8:], p.KeywordIdx)

	if p.Add {
		buf[12] = 1
	}

	return buf
}

// DecodeKeywordUpdatePayload parses a KeywordUpdatePayload.
func DecodeKeywordUpdatePayload(buf []byte) (KeywordUpdatePayload, error) {
	if len(buf) < 13 {
		return KeywordUpdatePayload{}, ErrShortRecord
	}

	return KeywordUpdatePayload{
		UID1:       binary.LittleEndian.Uint32(buf[0:]),
		UID2:       binary.LittleEndian.Uint32(buf[4:]),
		KeywordIdx: binary.LittleEndian.Uint32(buf[8:]),
		Add:        buf[12] != 0,
	}, nil
}

// EncodeKeywordResetPayload serializes a KeywordResetPayload.
func EncodeKeywordResetPayload(p KeywordResetPayload) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:], p.UID1)
	binary.LittleEndian.PutUint32(buf[4:], p.UID2)

	return buf
}

// DecodeKeywordResetPayload parses a KeywordResetPayload.
func DecodeKeywordResetPayload(buf []byte) (KeywordResetPayload, error) {
	if len(buf) < 8 {
		return KeywordResetPayload{}, ErrShortRecord
	}

	return KeywordResetPayload{
		UID1: binary.LittleEndian.Uint32(buf[0:]),
		UID2: binary.LittleEndian.Uint32(buf[4:]),
	}, nil
}

// EncodeHeaderUpdatePayload serializes a HeaderUpdatePayload.
func EncodeHeaderUpdatePayload(p HeaderUpdatePayload) []byte {
	buf := make([]byte, 4+len(p.Data))
	binary.LittleEndian.PutUint32(buf[0:], p.Offset)
	copy(buf[4:], p.Data)

	return buf
}

// DecodeHeaderUpdatePayload parses a HeaderUpdatePayload.
func DecodeHeaderUpdatePayload(buf []byte) (HeaderUpdatePayload, error) {
	if len(buf) < 4 {
		return HeaderUpdatePayload{}, ErrShortRecord
	}

	return HeaderUpdatePayload{
		Offset: binary.LittleEndian.Uint32(buf[0:]),
		Data:   buf[4:],
	}, nil
}

// EncodeExtIntroPayload serializes an ExtIntroPayload.
func EncodeExtIntroPayload(p ExtIntroPayload) []byte {
	buf := make([]byte, 4+4+4+4+len(p.Name))
	binary.LittleEndian.PutUint32(buf[0:], p.ExtID)
	binary.LittleEndian.PutUint32(buf[4:], p.HdrSize)
	binary.LittleEndian.PutUint32(buf[8:], p.RecordSize)
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(p.Name)))
	copy(buf[16:], p.Name)

	return buf
}

// DecodeExtIntroPayload parses an ExtIntroPayload.
func DecodeExtIntroPayload(buf []byte) (ExtIntroPayload, error) {
	if len(buf) < 16 {
		return ExtIntroPayload{}, ErrShortRecord
	}

	nameLen := int(binary.LittleEndian.Uint32(buf[12:]))
	if len(buf) < 16+nameLen {
		return ExtIntroPayload{}, ErrShortRecord
	}

	return ExtIntroPayload{
		ExtID:      binary.LittleEndian.Uint32(buf[0:]),
		HdrSize:    binary.LittleEndian.Uint32(buf[4:]),
		RecordSize: binary.LittleEndian.Uint32(buf[8:]),
		Name:       string(buf[16 : 16+nameLen]),
	}, nil
}

// EncodeExtResetPayload serializes an ExtResetPayload.
func EncodeExtResetPayload(p ExtResetPayload) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:], p.ExtID)
	binary.LittleEndian.PutUint32(buf[4:], p.ResetID)

	return buf
}

// DecodeExtResetPayload parses an ExtResetPayload.
func DecodeExtResetPayload(buf []byte) (ExtResetPayload, error) {
	if len(buf) < 8 {
		return ExtResetPayload{}, ErrShortRecord
	}

	return ExtResetPayload{
		ExtID:   binary.LittleEndian.Uint32(buf[0:]),
		ResetID: binary.LittleEndian.Uint32(buf[4:]),
	}, nil
}

// EncodeExtHdrUpdatePayload serializes an ExtHdrUpdatePayload.
func EncodeExtHdrUpdatePayload(p ExtHdrUpdatePayload) []byte {
	buf := make([]byte, 8+len(p.Data))
	binary.LittleEndian.PutUint32(buf[0:], p.ExtID)
	binary.LittleEndian.PutUint32(buf[4:], p.Offset)
	copy(buf[8:], p.Data)

	return buf
}

// DecodeExtHdrUpdatePayload parses an ExtHdrUpdatePayload.
func DecodeExtHdrUpdatePayload(buf []byte) (ExtHdrUpdatePayload, error) {
	if len(buf) < 8 {
		return ExtHdrUpdatePayload{}, ErrShortRecord
	}

	return ExtHdrUpdatePayload{
		ExtID:  binary.LittleEndian.Uint32(buf[0:]),
		Offset: binary.LittleEndian.Uint32(buf[4:]),
		Data:   buf[8:],
	}, nil
}

// EncodeExtRecUpdatePayload serializes an ExtRecUpdatePayload.
func EncodeExtRecUpdatePayload(p ExtRecUpdatePayload) []byte {
	buf := make([]byte, 8+len(p.Data))
	binary.LittleEndian.PutUint32(buf[0:], p.ExtID)
	binary.LittleEndian.PutUint32(buf[4:], p.UID)
	copy(buf[8:], p.Data)

	return buf
}

// DecodeExtRecUpdatePayload parses an ExtRecUpdatePayload.
func DecodeExtRecUpdatePayload(buf []byte) (ExtRecUpdatePayload, error) {
	if len(buf) < 8 {
		return ExtRecUpdatePayload{}, ErrShortRecord
	}

	return ExtRecUpdatePayload{
		ExtID: binary.LittleEndian.Uint32(buf[0:]),
		UID:   binary.LittleEndian.Uint32(buf[4:]),
		Data:  buf[8:],
	}, nil
}
