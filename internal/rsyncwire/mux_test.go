package rsyncwire

import (
	"bytes"
	"io"
	"testing"
)

func TestSendRecvMsgHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := SendMsg(&buf, MsgWarning, []byte("careful")); err != nil {
		t.Fatal(err)
	}
	code, length, err := RecvMsgHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if code != MsgWarning {
		t.Errorf("code = %v, want MsgWarning", code)
	}
	if length != len("careful") {
		t.Errorf("length = %d, want %d", length, len("careful"))
	}
}

func TestRecvMsgInto(t *testing.T) {
	var buf bytes.Buffer
	if err := SendMsg(&buf, MsgData, []byte("payload")); err != nil {
		t.Fatal(err)
	}
	code, got, err := RecvMsgInto(&buf, nil)
	if err != nil {
		t.Fatal(err)
	}
	if code != MsgData || string(got) != "payload" {
		t.Errorf("RecvMsgInto = (%v, %q), want (MsgData, %q)", code, got, "payload")
	}
}

func TestRecvMsgHeaderInvalidTag(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0}) // tag byte 0 < MplexBase
	if _, _, err := RecvMsgHeader(&buf); err == nil {
		t.Error("RecvMsgHeader with a tag below MplexBase returned nil error")
	}
}

func TestMultiplexWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	mw := &MultiplexWriter{Writer: &buf}
	if _, err := mw.Write([]byte("hello ")); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteMsg(MsgInfo, []byte("status line")); err != nil {
		t.Fatal(err)
	}
	if _, err := mw.Write([]byte("world")); err != nil {
		t.Fatal(err)
	}

	var sidebands []string
	mr := &MultiplexReader{
		Reader: &buf,
		OnSideband: func(code MsgCode, payload []byte) {
			sidebands = append(sidebands, string(payload))
		},
	}
	got := make([]byte, 11)
	if _, err := io.ReadFull(mr, got); err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello world" {
		t.Errorf("demultiplexed data = %q, want %q", got, "hello world")
	}
	if len(sidebands) != 1 || sidebands[0] != "status line" {
		t.Errorf("sidebands = %v, want [%q]", sidebands, "status line")
	}
}

func TestMultiplexWriterSplitsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	mw := &MultiplexWriter{Writer: &buf}
	big := bytes.Repeat([]byte{0x5A}, MaxPayload+100)
	n, err := mw.Write(big)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(big) {
		t.Fatalf("Write returned n=%d, want %d", n, len(big))
	}

	mr := &MultiplexReader{Reader: &buf}
	got := make([]byte, len(big))
	if _, err := io.ReadFull(mr, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, big) {
		t.Error("reassembled payload does not match the original oversized write")
	}
}

func TestSendMsgRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := SendMsg(&buf, MsgData, make([]byte, MaxPayload+1)); err == nil {
		t.Error("SendMsg with a payload larger than MaxPayload returned nil error")
	}
}
