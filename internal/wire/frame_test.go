package wire

import (
	"testing"
)

func TestAuthRoundTrip(t *testing.T) {
	buf := make([]byte, FrameCapacity)
	n, err := EncodeAuth(buf, 1, "alice", "s3cretpass")
	if err != nil {
		t.Fatalf("EncodeAuth: %v", err)
	}
	f, err := Decode(buf, n)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Kind != KindAuth || f.Seq != 1 {
		t.Fatalf("unexpected header: %+v", f)
	}
	if f.Auth.Username != "alice" || f.Auth.Password != "s3cretpass" {
		t.Fatalf("unexpected auth payload: %+v", f.Auth)
	}
}

func TestSigRoundTrip(t *testing.T) {
	buf := make([]byte, FrameCapacity)
	for _, seq := range []uint64{0, 1, 2, 1 << 63} {
		n, err := EncodeSig(buf, seq, SigAuthOK)
		if err != nil {
			t.Fatalf("EncodeSig: %v", err)
		}
		f, err := Decode(buf, n)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if f.Kind != KindSig || f.Seq != seq || f.Sig != SigAuthOK {
			t.Fatalf("unexpected frame: %+v", f)
		}
	}
}

func TestConfRoundTrip(t *testing.T) {
	buf := make([]byte, FrameCapacity)
	conf := ConfPayload{Inet4: "10.9.0.5/24", Inet4Broadcast: "10.9.0.255", Inet4Route: "10.9.0.255"}
	n, err := EncodeConf(buf, 4, conf)
	if err != nil {
		t.Fatalf("EncodeConf: %v", err)
	}
	f, err := Decode(buf, n)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Conf != conf {
		t.Fatalf("unexpected conf payload: %+v, want %+v", f.Conf, conf)
	}
}

func TestDataRoundTrip(t *testing.T) {
	buf := make([]byte, FrameCapacity)
	payload := make([]byte, 1400)
	for i := range payload {
		payload[i] = byte(i)
	}
	n, err := EncodeData(buf, 5, payload)
	if err != nil {
		t.Fatalf("EncodeData: %v", err)
	}
	f, err := Decode(buf, n)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(f.Data) != string(payload) {
		t.Fatalf("data payload mismatch")
	}
}

func TestDataReusesBufferWithoutClearing(t *testing.T) {
	buf := make([]byte, FrameCapacity)
	big, _ := EncodeData(buf, 1, make([]byte, 100))
	_ = big
	small, err := EncodeData(buf, 2, make([]byte, 10))
	if err != nil {
		t.Fatalf("EncodeData: %v", err)
	}
	f, err := Decode(buf, small)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(f.Data) != 10 {
		t.Fatalf("expected declared length 10 bytes to be authoritative, got %d", len(f.Data))
	}
}

func TestDecodeRejectsShortLength(t *testing.T) {
	buf := make([]byte, HeaderSize-1)
	if _, err := Decode(buf, len(buf)); err == nil {
		t.Fatalf("expected MALFORMED for region shorter than header")
	}
}

func TestDecodeRejectsLengthBelowHeaderSize(t *testing.T) {
	buf := make([]byte, FrameCapacity)
	PutHeader(buf, Header{Kind: KindSig, Length: HeaderSize - 1, Seq: 1})
	if _, err := PeekHeader(buf); err == nil {
		t.Fatalf("expected MALFORMED for length < header size")
	}
}

func TestDecodeRejectsOversizeLength(t *testing.T) {
	buf := make([]byte, FrameCapacity)
	PutHeader(buf, Header{Kind: KindSig, Length: FrameCapacity + 1, Seq: 1})
	if _, err := PeekHeader(buf); err == nil {
		t.Fatalf("expected MALFORMED for length beyond frame capacity")
	}
}

func TestEncodeAuthRejectsOversizeCredentials(t *testing.T) {
	buf := make([]byte, FrameCapacity)
	long := make([]byte, AuthUsernameCap)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := EncodeAuth(buf, 1, string(long), "pw"); err == nil {
		t.Fatalf("expected error for oversize username")
	}
}

func TestEncodeDataRejectsOversizePayload(t *testing.T) {
	buf := make([]byte, FrameCapacity)
	if _, err := EncodeData(buf, 1, make([]byte, MaxDataSize+1)); err == nil {
		t.Fatalf("expected error for oversize DATA payload")
	}
}

func TestPutSeqRestampsWithoutTouchingPayload(t *testing.T) {
	buf := make([]byte, FrameCapacity)
	n, err := EncodeData(buf, 1, []byte("hello"))
	if err != nil {
		t.Fatalf("EncodeData: %v", err)
	}
	PutSeq(buf, 99)
	f, err := Decode(buf, n)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Seq != 99 || string(f.Data) != "hello" {
		t.Fatalf("unexpected frame after PutSeq: %+v", f)
	}
}

func TestPeekHeaderUsedForReassembly(t *testing.T) {
	buf := make([]byte, FrameCapacity)
	payload := make([]byte, 2000)
	n, err := EncodeData(buf, 9, payload)
	if err != nil {
		t.Fatalf("EncodeData: %v", err)
	}
	// Simulate a short first read of only the header plus a few bytes.
	h, err := PeekHeader(buf[:HeaderSize+5])
	if err != nil {
		t.Fatalf("PeekHeader: %v", err)
	}
	if int(h.Length) != n {
		t.Fatalf("declared length mismatch: got %d want %d", h.Length, n)
	}
}
