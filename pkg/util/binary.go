// Package util collects the small binary-encoding and hashing helpers
// shared by the storage core's packages, in the spirit of the
// teacher's top-level util package.
package util

import "encoding/binary"

// PutUint16 / PutUint32 / PutUint64 write little-endian fixed-width
// integers into dst, which must be at least as long as the field.
func PutUint16(dst []byte, v uint16) { binary.LittleEndian.PutUint16(dst, v) }
func PutUint32(dst []byte, v uint32) { binary.LittleEndian.PutUint32(dst, v) }
func PutUint64(dst []byte, v uint64) { binary.LittleEndian.PutUint64(dst, v) }

// Uint16 / Uint32 / Uint64 read little-endian fixed-width integers.
func Uint16(src []byte) uint16 { return binary.LittleEndian.Uint16(src) }
func Uint32(src []byte) uint32 { return binary.LittleEndian.Uint32(src) }
func Uint64(src []byte) uint64 { return binary.LittleEndian.Uint64(src) }

// XORChecksum computes the XOR of every 4-byte little-endian word in
// data, per the Page checksum rule in spec §3. len(data) must be a
// multiple of 4; any trailing partial word is folded in as-is.
func XORChecksum(data []byte) uint32 {
	var sum uint32
	n := len(data) - len(data)%4
	for i := 0; i < n; i += 4 {
		sum ^= Uint32(data[i : i+4])
	}
	if rem := data[n:]; len(rem) > 0 {
		var tail [4]byte
		copy(tail[:], rem)
		sum ^= Uint32(tail[:])
	}
	return sum
}
