package leafhash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortHash_Deterministic(t *testing.T) {
	data := []byte("the same bytes every time")
	first := ShortHash(data)
	second := ShortHash(data)
	assert.Equal(t, first, second)
}

func TestShortHash_Format(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty input", data: []byte{}},
		{name: "short input", data: []byte("a")},
		{name: "binary input", data: []byte{0x00, 0xff, 0x10, 0x80}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash := ShortHash(tt.data)
			// 160-bit digest encodes to exactly 32 base32 characters, no padding
			require.Len(t, hash, 32)
			assert.NotContains(t, hash, "=")
			for _, c := range hash {
				assert.Contains(t, "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567", string(c))
			}
		})
	}
}

func TestShortHash_DifferentInputs(t *testing.T) {
	assert.NotEqual(t, ShortHash([]byte("one")), ShortHash([]byte("two")))
}

func TestQuickID(t *testing.T) {
	chunk := []byte("first chunk of the file")

	id := QuickID(12345, chunk)
	assert.Equal(t, ShortHash(append([]byte("12345"), chunk...)), id)

	// size participates in the fingerprint
	assert.NotEqual(t, id, QuickID(12346, chunk))

	// chunk content participates in the fingerprint
	assert.NotEqual(t, id, QuickID(12345, []byte("other chunk")))
}

func TestQuickID_EmptyFile(t *testing.T) {
	id := QuickID(0, nil)
	require.Len(t, id, 32)
	assert.Equal(t, ShortHash([]byte("0")), id)
	assert.False(t, strings.Contains(id, "="))
}
