package catalog

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/cydb/storage/pkg/util"
)

func writeInt32(w *bufio.Writer, n int32) error {
	var buf [4]byte
	util.PutUint32(buf[:], uint32(n))
	_, err := w.Write(buf[:])
	return err
}

func readInt32(r *bufio.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int32(util.Uint32(buf[:])), nil
}

func writeUint32(w *bufio.Writer, n uint32) error {
	var buf [4]byte
	util.PutUint32(buf[:], n)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r *bufio.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return util.Uint32(buf[:]), nil
}

func writeUint64(w *bufio.Writer, n uint64) error {
	var buf [8]byte
	util.PutUint64(buf[:], n)
	_, err := w.Write(buf[:])
	return err
}

func readUint64(r *bufio.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return util.Uint64(buf[:]), nil
}

func writeBool(w *bufio.Writer, b bool) error {
	if b {
		return w.WriteByte(1)
	}
	return w.WriteByte(0)
}

func readBool(r *bufio.Reader) (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

func writeUvarint(w *bufio.Writer, n uint64) error {
	var buf [binary.MaxVarintLen64]byte
	k := binary.PutUvarint(buf[:], n)
	_, err := w.Write(buf[:k])
	return err
}

func readUvarint(r *bufio.Reader) (uint64, error) {
	return binary.ReadUvarint(r)
}

func writeVarString(w *bufio.Writer, s string) error {
	return util.WriteVarString(w, s)
}

func readVarString(r *bufio.Reader) (string, error) {
	return util.ReadVarString(r)
}

func readFullBytes(r *bufio.Reader, buf []byte) (int, error) {
	return io.ReadFull(r, buf)
}
