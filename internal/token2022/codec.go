package token2022

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// encoder wraps bin.Encoder and keeps the first write error.
type encoder struct {
	buf bytes.Buffer
	enc *bin.Encoder
	err error
}

func newEncoder() *encoder {
	e := &encoder{}
	e.enc = bin.NewBinEncoder(&e.buf)
	return e
}

func (e *encoder) u8(v uint8) {
	if e.err == nil {
		e.err = e.enc.WriteUint8(v)
	}
}

func (e *encoder) u16(v uint16) {
	if e.err == nil {
		e.err = e.enc.WriteUint16(v, bin.LE)
	}
}

func (e *encoder) u32(v uint32) {
	if e.err == nil {
		e.err = e.enc.WriteUint32(v, bin.LE)
	}
}

func (e *encoder) u64(v uint64) {
	if e.err == nil {
		e.err = e.enc.WriteUint64(v, bin.LE)
	}
}

func (e *encoder) raw(b []byte) {
	if e.err == nil {
		e.err = e.enc.WriteBytes(b, false)
	}
}

func (e *encoder) pubkey(pk solana.PublicKey) {
	e.raw(pk[:])
}

// str writes a Borsh string: u32 length followed by UTF-8 bytes.
func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.raw([]byte(s))
}

// pubkeyOption writes a COption<Pubkey> in instruction form: a single zero
// byte for None, or 1 followed by the key.
func (e *encoder) pubkeyOption(pk *solana.PublicKey) {
	if pk == nil {
		e.u8(0)
		return
	}
	e.u8(1)
	e.pubkey(*pk)
}

// statePubkeyOption writes a COption<Pubkey> in account-state form: a u32
// tag followed by 32 bytes that are zero when absent.
func (e *encoder) statePubkeyOption(pk *solana.PublicKey) {
	if pk == nil {
		e.u32(0)
		e.raw(make([]byte, 32))
		return
	}
	e.u32(1)
	e.pubkey(*pk)
}

func (e *encoder) bytes() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.buf.Bytes(), nil
}

// decoder wraps bin.Decoder and keeps the first read error.
type decoder struct {
	dec *bin.Decoder
	err error
}

func newDecoder(data []byte) *decoder {
	return &decoder{dec: bin.NewBinDecoder(data)}
}

func (d *decoder) u8() uint8 {
	if d.err != nil {
		return 0
	}
	v, err := d.dec.ReadUint8()
	d.err = err
	return v
}

func (d *decoder) u16() uint16 {
	if d.err != nil {
		return 0
	}
	v, err := d.dec.ReadUint16(bin.LE)
	d.err = err
	return v
}

func (d *decoder) u32() uint32 {
	if d.err != nil {
		return 0
	}
	v, err := d.dec.ReadUint32(bin.LE)
	d.err = err
	return v
}

func (d *decoder) u64() uint64 {
	if d.err != nil {
		return 0
	}
	v, err := d.dec.ReadUint64(bin.LE)
	d.err = err
	return v
}

func (d *decoder) raw(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n > d.dec.Remaining() {
		d.err = fmt.Errorf("read %d bytes: only %d remaining", n, d.dec.Remaining())
		return nil
	}
	v, err := d.dec.ReadNBytes(n)
	d.err = err
	return v
}

func (d *decoder) pubkey() solana.PublicKey {
	b := d.raw(32)
	if b == nil {
		return solana.PublicKey{}
	}
	return solana.PublicKeyFromBytes(b)
}

func (d *decoder) str() string {
	n := d.u32()
	return string(d.raw(int(n)))
}

// statePubkeyOption reads a u32-tagged COption<Pubkey>.
func (d *decoder) statePubkeyOption() *solana.PublicKey {
	tag := d.u32()
	pk := d.pubkey()
	if d.err != nil || tag == 0 {
		return nil
	}
	return &pk
}

// optionalNonZero reads an OptionalNonZeroPubkey, where all-zero means None.
func (d *decoder) optionalNonZero() *solana.PublicKey {
	pk := d.pubkey()
	if d.err != nil || pk.IsZero() {
		return nil
	}
	return &pk
}

func (d *decoder) remaining() int {
	return d.dec.Remaining()
}
