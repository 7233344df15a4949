package service

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// byteSource replays a fixed byte sequence forever
type byteSource struct {
	seq []byte
	pos int
}

func (b *byteSource) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = b.seq[b.pos%len(b.seq)]
		b.pos++
	}
	return len(p), nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy unavailable") }

func TestNewCode_Format(t *testing.T) {
	gen := NewCodeGenerator(nil)

	for i := 0; i < 500; i++ {
		code, err := gen.NewCode()
		require.NoError(t, err)
		assert.Regexp(t, `^[A-Z0-9]{8}$`, code)
		assert.True(t, ValidCode(code))
	}
}

func TestNewCode_RejectsBiasedBytes(t *testing.T) {
	src := &byteSource{seq: append([]byte{255, 254, 253, 252}, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11)}
	gen := NewCodeGenerator(src)

	code, err := gen.NewCode()
	require.NoError(t, err)
	assert.Equal(t, "ABCDEFGH", code)
}

func TestNewCode_EverySymbolReachable(t *testing.T) {
	seq := make([]byte, 252)
	for i := range seq {
		seq[i] = byte(i)
	}
	gen := NewCodeGenerator(&byteSource{seq: seq})

	counts := map[rune]int{}
	for i := 0; i < 252/CodeLength*2; i++ {
		code, err := gen.NewCode()
		require.NoError(t, err)
		for _, r := range code {
			counts[r]++
		}
	}
	assert.Len(t, counts, len(CodeAlphabet))
}

func TestNewCode_ReaderError(t *testing.T) {
	gen := NewCodeGenerator(failingReader{})
	_, err := gen.NewCode()
	assert.Error(t, err)
}

func TestValidCode(t *testing.T) {
	valid := []string{"ABCD1234", "00000000", "ZZZZZZZZ"}
	invalid := []string{"", "abcd1234", "ABC1234", "ABCD12345", "ABCD-123", "ABCD 123", "ÄBCD1234"}

	for _, c := range valid {
		assert.True(t, ValidCode(c), c)
	}
	for _, c := range invalid {
		assert.False(t, ValidCode(c), c)
	}
}

func TestValidPhone(t *testing.T) {
	assert.True(t, ValidPhone("13800138000"))
	assert.True(t, ValidPhone("19912345678"))
	assert.False(t, ValidPhone("12800138000"))
	assert.False(t, ValidPhone("1380013800"))
	assert.False(t, ValidPhone("138001380001"))
	assert.False(t, ValidPhone(string(bytes.Repeat([]byte("1"), 11))))
}
