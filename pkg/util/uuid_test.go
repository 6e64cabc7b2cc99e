package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMd5ThenHex(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", Md5ThenHex(nil))
	assert.Len(t, Md5ThenHex([]byte("stream")), 32)
}

func TestHashUUID_Deterministic(t *testing.T) {
	a := HashUUID(map[string]int{"quality": 75})
	b := HashUUID(map[string]int{"quality": 75})
	c := HashUUID(map[string]int{"quality": 76})
	assert.NotEmpty(t, a)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
