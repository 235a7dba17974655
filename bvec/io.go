package bvec

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// File format: one int32 header holding the global scalar length, then the
// values contiguous in global owner order, native (little endian) layout.
// The format is independent of the rank count.

const headerBytes = 4

// rankOffsets gathers the local sizes and prefix-sums them into per-rank
// scalar offsets; the last entry is the global length.
func (v *BVec) rankOffsets() (offsets []int) {
	sizes := v.c.AllgatherInt(v.size)
	offsets = make([]int, len(sizes)+1)
	for i, s := range sizes {
		offsets[i+1] = offsets[i] + s
	}
	return
}

// WriteToFile writes the vector with shared-file collective I/O. The
// filename must match byte for byte on every rank. Collective.
func (v *BVec) WriteToFile(filename string) error {
	var (
		rank    = v.c.Rank()
		offsets = v.rankOffsets()
	)

	// Root creates the file and writes the header before the others open.
	if rank == 0 {
		f, err := os.Create(filename)
		if err != nil {
			v.c.Barrier()
			fmt.Fprintf(os.Stderr, "[%d] BVec.WriteToFile: %v\n", rank, err)
			return err
		}
		var hdr [headerBytes]byte
		binary.LittleEndian.PutUint32(hdr[:], uint32(offsets[len(offsets)-1]))
		if _, err = f.Write(hdr[:]); err != nil {
			f.Close()
			v.c.Barrier()
			return err
		}
		f.Close()
	}
	v.c.Barrier()

	f, err := os.OpenFile(filename, os.O_WRONLY, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[%d] BVec.WriteToFile: %v\n", rank, err)
		return err
	}
	defer f.Close()

	buf := make([]byte, 8*v.size)
	for i, val := range v.x {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(val))
	}
	_, err = f.WriteAt(buf, int64(headerBytes+8*offsets[rank]))
	return err
}

// ReadFromFile reads a vector previously written by WriteToFile. If the
// header length does not match the current global length the vector is
// zeroed, a diagnostic is emitted and a non-nil error returned. Collective.
func (v *BVec) ReadFromFile(filename string) error {
	var (
		rank    = v.c.Rank()
		offsets = v.rankOffsets()
		global  = offsets[len(offsets)-1]
	)

	f, err := os.Open(filename)
	if err != nil {
		// Keep the header broadcast collective even on a local failure
		v.c.BcastInt64(-1, 0)
		fmt.Fprintf(os.Stderr, "[%d] BVec.ReadFromFile: %v\n", rank, err)
		return err
	}
	defer f.Close()

	var fileLen int64 = -1
	if rank == 0 {
		var hdr [headerBytes]byte
		if _, err := f.ReadAt(hdr[:], 0); err == nil {
			fileLen = int64(binary.LittleEndian.Uint32(hdr[:]))
		}
	}
	fileLen = v.c.BcastInt64(fileLen, 0)
	if fileLen != int64(global) {
		fmt.Fprintf(os.Stderr,
			"[%d] Cannot read BVec from file, incorrect size %d != %d\n",
			rank, global, fileLen)
		for i := range v.x {
			v.x[i] = 0
		}
		return fmt.Errorf("bvec: file length %d does not match vector length %d",
			fileLen, global)
	}

	buf := make([]byte, 8*v.size)
	// ReadAt may pair io.EOF with a complete read at the end of the file;
	// only a short read is a failure.
	if n, err := f.ReadAt(buf, int64(headerBytes+8*offsets[rank])); n < len(buf) {
		fmt.Fprintf(os.Stderr, "[%d] BVec.ReadFromFile: %v\n", rank, err)
		return fmt.Errorf("bvec: short read of %s: %w", filename, err)
	}
	for i := range v.x {
		v.x[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return nil
}
