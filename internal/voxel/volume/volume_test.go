package volume

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPowerOfTwo(t *testing.T) {
	require.Panics(t, func() { New(0) })
	require.Panics(t, func() { New(12) })
	require.NotPanics(t, func() { New(1) })
}

func TestSetAndAt(t *testing.T) {
	v := New(8)
	v.Set(Pos{X: 1, Y: 2, Z: 3}, 42)
	require.Equal(t, uint8(42), v.At(Pos{X: 1, Y: 2, Z: 3}))
	require.Equal(t, uint8(0), v.At(Pos{X: 3, Y: 2, Z: 1}))
	require.Equal(t, 1, v.Solid())
}

func TestOutOfRangePanics(t *testing.T) {
	v := New(4)
	require.Panics(t, func() { v.At(Pos{X: 4}) })
	require.Panics(t, func() { v.Set(Pos{Z: 9}, 1) })
	require.False(t, v.InBounds(Pos{Y: 4}))
	require.True(t, v.InBounds(Pos{X: 3, Y: 3, Z: 3}))
}

func TestFill(t *testing.T) {
	v := New(8)
	require.NoError(t, v.Fill(Box{Min: Pos{X: 1, Y: 1, Z: 1}, Max: Pos{X: 3, Y: 4, Z: 2}}, 7))
	require.Equal(t, 2*3*1, v.Count(7))
	require.Equal(t, uint8(7), v.At(Pos{X: 2, Y: 3, Z: 1}))
	require.Equal(t, uint8(0), v.At(Pos{X: 3, Y: 3, Z: 1}))

	require.NoError(t, v.Fill(Box{Min: Pos{X: 5}, Max: Pos{X: 5, Y: 8, Z: 8}}, 9))
	require.Equal(t, 0, v.Count(9))
}

func TestFillRejectsOutOfBounds(t *testing.T) {
	v := New(4)
	err := v.Fill(Box{Max: Pos{X: 5, Y: 4, Z: 4}}, 3)
	require.ErrorIs(t, err, ErrBoxOutOfBounds)
	require.Equal(t, 0, v.Count(3))
}

func TestSerializeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	v := New(16)
	for z := 0; z < 16; z++ {
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				v.Set(Pos{X: uint16(x), Y: uint16(y), Z: uint16(z)}, uint8(rng.Intn(256)))
			}
		}
	}
	raw := v.Serialize()
	require.Len(t, raw, 16*16*16)
	require.Equal(t, v.At(Pos{X: 1}), raw[1])
	require.Equal(t, v.At(Pos{Y: 1}), raw[16])
	require.Equal(t, v.At(Pos{Z: 1}), raw[256])

	out := New(16)
	require.NoError(t, out.Fill(Box{Max: Pos{X: 16, Y: 16, Z: 16}}, 1))
	require.NoError(t, out.Deserialize(raw))
	for z := 0; z < 16; z++ {
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				p := Pos{X: uint16(x), Y: uint16(y), Z: uint16(z)}
				require.Equal(t, v.At(p), out.At(p), "at %v", p)
			}
		}
	}
}

func TestDeserializeRejectsTruncatedInput(t *testing.T) {
	v := New(4)
	v.Set(Pos{X: 1}, 5)
	err := v.Deserialize(make([]byte, 63))
	require.ErrorIs(t, err, ErrMalformedVolume)
	require.Equal(t, uint8(5), v.At(Pos{X: 1}))

	err = v.Deserialize(make([]byte, 65))
	require.ErrorIs(t, err, ErrMalformedVolume)
}

func TestCloneIsIndependent(t *testing.T) {
	v := New(2)
	v.Set(Pos{}, 1)
	c := v.Clone()
	c.Set(Pos{}, 2)
	require.Equal(t, uint8(1), v.At(Pos{}))
	require.Equal(t, uint8(2), c.At(Pos{}))
}
