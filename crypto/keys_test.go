package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	encoded := addr.String()
	if !strings.HasPrefix(encoded, AddressHRP+"1") {
		t.Fatalf("expected %q prefix, got %s", AddressHRP, encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), addr.Bytes()) {
		t.Fatalf("round trip mismatch: %x != %x", decoded.Bytes(), addr.Bytes())
	}
}

func TestDecodeAddressRejectsForeignPrefix(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	foreign := strings.Replace(addr.String(), AddressHRP+"1", "nhb1", 1)
	if _, err := DecodeAddress(foreign); err == nil {
		t.Fatalf("expected prefix rejection for %s", foreign)
	}
}

func TestZeroAddress(t *testing.T) {
	if !ZeroAddress.IsZero() {
		t.Fatal("zero address must report IsZero")
	}
	var raw [AddressLength]byte
	raw[0] = 0x01
	addr, err := AddressFromBytes(raw[:])
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	if addr.IsZero() {
		t.Fatal("non-zero address reported IsZero")
	}
	if _, err := AddressFromBytes(make([]byte, 19)); err == nil {
		t.Fatal("expected length error")
	}
}
