// Package encoding holds the compact run-length form used for volume payloads in
// snapshots.
package encoding

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// EncodeRuns encodes material ids as varint pairs (material, run_len) repeated.
func EncodeRuns(ids []uint8) []byte {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(ids) {
		m := ids[i]
		run := 1
		for j := i + 1; j < len(ids) && ids[j] == m; j++ {
			run++
		}

		buf.WriteByte(m)
		n := binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}
	return buf.Bytes()
}

// DecodeRuns expands runs into exactly want ids. Runs that overshoot or fall short of
// want are rejected.
func DecodeRuns(raw []byte, want int) ([]uint8, error) {
	out := make([]uint8, 0, want)
	for i := 0; i < len(raw); {
		m := raw[i]
		i++
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if run == 0 {
			return nil, fmt.Errorf("zero-length run at %d", i)
		}
		if uint64(len(out))+run > uint64(want) {
			return nil, fmt.Errorf("runs exceed %d ids", want)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, m)
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("runs cover %d ids, want %d", len(out), want)
	}
	return out, nil
}
