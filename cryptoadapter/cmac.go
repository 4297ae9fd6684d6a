package cryptoadapter

import (
	"crypto/aes"
	"crypto/cipher"

	"calypsocore/calypsoerr"
)

// aesCMAC computes AES-CMAC (NIST SP 800-38B) with a 16-byte output,
// AES-128 only.
func aesCMAC(key, msg []byte) ([]byte, error) {
	if len(key) != 16 {
		return nil, calypsoerr.New(calypsoerr.InvalidInput, "aesCMAC", "key must be 16 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, calypsoerr.Wrap(calypsoerr.InvalidInput, "aesCMAC", err)
	}
	zero := make([]byte, 16)
	l := make([]byte, 16)
	block.Encrypt(l, zero)

	k1 := shiftLeftOneBit(l)
	if l[0]&0x80 != 0 {
		k1[15] ^= 0x87
	}
	k2 := shiftLeftOneBit(k1)
	if k1[0]&0x80 != 0 {
		k2[15] ^= 0x87
	}

	n := 1
	if len(msg) != 0 {
		n = (len(msg) + 15) / 16
	}
	complete := len(msg) != 0 && len(msg)%16 == 0

	var lastBlock []byte
	if complete {
		start := (n - 1) * 16
		lastBlock = xor16(msg[start:start+16], k1)
	} else {
		lastBlock = xor16(pad80(msg, n*16), k2)
	}

	buf := make([]byte, n*16)
	if len(msg) >= 16 {
		copy(buf, msg[:(n-1)*16])
	}
	copy(buf[(n-1)*16:], lastBlock)

	iv := make([]byte, 16)
	cbc := cipher.NewCBCEncrypter(block, iv)
	cbc.CryptBlocks(buf, buf)
	return buf[len(buf)-16:], nil
}

func shiftLeftOneBit(in []byte) []byte {
	out := make([]byte, 16)
	var carry byte
	for i := 15; i >= 0; i-- {
		out[i] = (in[i] << 1) | carry
		carry = in[i] >> 7
	}
	return out
}

func xor16(a, b []byte) []byte {
	out := make([]byte, 16)
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// pad80 right-pads msg to size bytes with 0x80 then zeros, taking just
// the final block's worth.
func pad80(msg []byte, size int) []byte {
	padded := make([]byte, size)
	copy(padded, msg)
	padded[len(msg)] = 0x80
	return padded[size-16:]
}
