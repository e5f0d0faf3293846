package translog

import (
	"bytes"
	"testing"
)

func TestAppendPayload_RoundTrip(t *testing.T) {
	p := AppendPayload{UID: 7, Flags: 0x05, Keywords: []byte{0xAB, 0xCD}}
	got, err := DecodeAppendPayload(EncodeAppendPayload(p))
	if err != nil {
		t.Fatalf("DecodeAppendPayload: %v", err)
	}

	if got.UID != p.UID || got.Flags != p.Flags || !bytes.Equal(got.Keywords, p.Keywords) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestFlagUpdatePayload_RoundTrip(t *testing.T) {
	p := FlagUpdatePayload{UID1: 1, UID2: 9, AddFlags: 0x01, RemoveFlags: 0x02}
	got, err := DecodeFlagUpdatePayload(EncodeFlagUpdatePayload(p))
	if err != nil || got != p {
		t.Fatalf("round trip mismatch: got %+v, err %v, want %+v", got, err, p)
	}
}

func TestKeywordUpdatePayload_RoundTrip(t *testing.T) {
	p := KeywordUpdatePayload{UID1: 3, UID2: 3, KeywordIdx: 2, Add: true}
	got, err := DecodeKeywordUpdatePayload(EncodeKeywordUpdatePayload(p))
	if err != nil || got != p {
		t.Fatalf("round trip mismatch: got %+v, err %v, want %+v", got, err, p)
	}
}

func TestExtIntroPayload_RoundTrip(t *testing.T) {
	p := ExtIntroPayload{ExtID: 4, Name: "imap.envelope", HdrSize: 0, RecordSize: 16}
	got, err := DecodeExtIntroPayload(EncodeExtIntroPayload(p))
	if err != nil {
		t.Fatalf("DecodeExtIntroPayload: %v", err)
	}

	if got.ExtID != p.ExtID || got.Name != p.Name || got.RecordSize != p.RecordSize {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestExtRecUpdatePayload_RoundTrip(t *testing.T) {
	p := ExtRecUpdatePayload{ExtID: 4, UID: 10, Data: []byte("cache-offset-bytes")}
	got, err := DecodeExtRecUpdatePayload(EncodeExtRecUpdatePayload(p))
	if err != nil || got.ExtID != p.ExtID || got.UID != p.UID || !bytes.Equal(got.Data, p.Data) {
		t.Fatalf("round trip mismatch: got %+v, err %v, want %+v", got, err, p)
	}
}
