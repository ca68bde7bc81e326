package adv

import (
	"bytes"
	"testing"
)

type testPdu struct {
	b []byte
}

func (t *testPdu) addBad(recTyp byte, badRecLen byte, recBytes []byte) {
	t.b = append(t.b, badRecLen, recTyp)
	t.b = append(t.b, recBytes...)
}

func (t *testPdu) add(recTyp byte, recBytes []byte) {
	lb := byte(len(recBytes) + 1)
	t.b = append(t.b, lb, recTyp)
	t.b = append(t.b, recBytes...)
}

func (t *testPdu) bytes() []byte {
	return t.b
}

func TestParseProxyAdvertisement(t *testing.T) {
	identity := append([]byte{0x01}, bytes.Repeat([]byte{0xab}, 16)...)

	p := testPdu{}
	p.add(types.flags, []byte{0x06})
	p.add(types.uuid16comp, []byte{0x28, 0x18})
	p.add(types.svc16, append([]byte{0x28, 0x18}, identity...))
	p.add(types.namecomp, []byte("lamp"))

	a, err := Parse(p.bytes())
	if err != nil {
		t.Fatal(err)
	}

	if len(a.Services) != 1 || a.Services[0].String() != "1828" {
		t.Fatalf("services: %v", a.Services)
	}
	if a.LocalName != "lamp" {
		t.Fatalf("name: %q", a.LocalName)
	}

	sd := a.ServiceData16(0x1828)
	if len(sd) != 1 || !bytes.Equal(sd[0], identity) {
		t.Fatalf("service data: %x", sd)
	}
	if len(a.ServiceData16(0x1827)) != 0 {
		t.Fatal("unexpected provisioning service data")
	}
}

func TestParseArrays(t *testing.T) {
	p := testPdu{}
	p.add(types.uuid16inc, []byte{0x27, 0x18, 0x28, 0x18})
	p.add(types.uuid128comp, bytes.Repeat([]byte{0x01}, 16))

	a, err := Parse(p.bytes())
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Services) != 3 {
		t.Fatalf("exp 3 services, got %v", len(a.Services))
	}
}

func TestParseBad(t *testing.T) {
	if _, err := Parse(nil); err != ErrEmptyPdu {
		t.Fatalf("exp empty pdu error, got %v", err)
	}

	// len % arraySz != 0
	p := testPdu{}
	p.add(types.uuid16comp, []byte{0x28, 0x18, 0xbb})
	if _, err := Parse(p.bytes()); err == nil {
		t.Fatalf("len%%size != 0, no decode error")
	}

	// record length runs past the buffer
	p = testPdu{}
	p.addBad(types.svc16, 20, []byte{0x28, 0x18, 0x01})
	if _, err := Parse(p.bytes()); err == nil {
		t.Fatal("overflow, no decode error")
	}

	// zero length record
	p = testPdu{}
	p.addBad(types.flags, 0, []byte{0x06})
	if _, err := Parse(p.bytes()); err == nil {
		t.Fatal("zero length, no decode error")
	}

	// service data shorter than its uuid
	p = testPdu{}
	p.add(types.svc16, []byte{0x28})
	if _, err := Parse(p.bytes()); err == nil {
		t.Fatal("short service data, no decode error")
	}
}

func TestParseSkipsUnknown(t *testing.T) {
	p := testPdu{}
	p.add(0x2a, []byte{0x01, 0x02})
	p.add(types.txpwr, []byte{0xf4})

	a, err := Parse(p.bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.TxPower, []byte{0xf4}) {
		t.Fatalf("tx power: %x", a.TxPower)
	}
}
