package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashString(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", HashString(""))
	assert.Equal(t, HashString("informe"), HashString("informe"))
	assert.NotEqual(t, HashString("a"), HashString("b"))
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "dasos:payload:2022-23:1S:10II_105000005",
		CacheKey("dasos:payload", "2022-23", "1S", "10II_105000005"))
	assert.Equal(t, "p:a", CacheKey("p", "", "a"))
}
