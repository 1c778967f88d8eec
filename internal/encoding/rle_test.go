package encoding

import "testing"

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]uint8, 0, 400)
	in = append(in, 1, 1, 1, 2, 2, 3)
	for i := 0; i < 300; i++ {
		in = append(in, 100)
	}
	in = append(in, 0, 255, 255, 0)

	out, err := DecodeRuns(EncodeRuns(in), len(in))
	if err != nil {
		t.Fatalf("DecodeRuns: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestRuns_LongRunIsCompact(t *testing.T) {
	in := make([]uint8, 128*128*128)
	raw := EncodeRuns(in)
	// one material byte plus a 4-byte varint for 1<<21
	if len(raw) != 5 {
		t.Fatalf("encoded len: got %d want 5", len(raw))
	}
}

func TestRuns_RejectsWrongLength(t *testing.T) {
	raw := EncodeRuns([]uint8{5, 5, 5, 5})
	if _, err := DecodeRuns(raw, 3); err == nil {
		t.Fatalf("expected overshoot error")
	}
	if _, err := DecodeRuns(raw, 5); err == nil {
		t.Fatalf("expected short error")
	}
	if _, err := DecodeRuns([]byte{1}, 1); err == nil {
		t.Fatalf("expected bad varint error")
	}
	if _, err := DecodeRuns([]byte{1, 0}, 0); err == nil {
		t.Fatalf("expected zero run error")
	}
}
