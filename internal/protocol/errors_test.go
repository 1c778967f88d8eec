package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrBusy,
		ErrRateLimit,
		ErrOutOfBound,
		ErrBadRequest,
		ErrNothingToMine,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestNewRejectMapsUnknownCodes(t *testing.T) {
	ack := NewReject(TypeEdit, "r1", ErrRateLimit, "slow down")
	if ack.Accepted || ack.Code != ErrRateLimit || ack.Message != "slow down" {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	ack = NewReject(TypeEdit, "r1", "E_NOT_DEFINED", "boom")
	if ack.Code != ErrInternal || ack.Message != "E_NOT_DEFINED: boom" {
		t.Fatalf("unknown code not mapped: %+v", ack)
	}
	if ack = NewReject(TypeMine, "", "", "x"); ack.Code != ErrInternal {
		t.Fatalf("empty code not mapped: %+v", ack)
	}
}
