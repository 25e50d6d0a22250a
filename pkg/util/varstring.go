package util

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// WriteVarString writes s the way .NET's BinaryWriter.Write(string)
// does: a 7-bit varint length prefix (LEB128, unsigned) followed by
// the raw UTF-8 bytes. spec §6 requires this exact framing so catalog
// files stay interoperable with legacy data written by the original
// implementation.
func WriteVarString(w io.Writer, s string) error {
	b := []byte(s)
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(b)))
	if _, err := w.Write(lenBuf[:n]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadVarString reads a string framed by WriteVarString.
func ReadVarString(r *bufio.Reader) (string, error) {
	length, err := binary.ReadUvarint(r)
	if err != nil {
		return "", fmt.Errorf("read varstring length: %w", err)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read varstring body: %w", err)
	}
	return string(buf), nil
}
