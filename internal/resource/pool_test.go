package resource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPayloadPool_SizeBound(t *testing.T) {
	p := NewPayloadPool(2, 0)
	p.Put("a", []byte("1"))
	p.Put("b", []byte("2"))
	p.Put("c", []byte("3"))

	assert.Equal(t, 2, p.Len())
	_, ok := p.Get("a")
	assert.False(t, ok, "oldest evicted")
	got, ok := p.Get("c")
	assert.True(t, ok)
	assert.Equal(t, "3", string(got))
}

func TestPayloadPool_MaxAge(t *testing.T) {
	p := NewPayloadPool(4, 20*time.Millisecond)
	p.Put("a", []byte("1"))
	assert.Eventually(t, func() bool {
		_, ok := p.Get("a")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestPayloadPool_CopiesOnPutAndGet(t *testing.T) {
	p := NewPayloadPool(0, 0)
	src := []byte("abc")
	p.Put("a", src)
	src[0] = 'X'

	got, _ := p.Get("a")
	assert.Equal(t, "abc", string(got))
	got[0] = 'Y'
	again, _ := p.Get("a")
	assert.Equal(t, "abc", string(again))

	p.Drop("a")
	assert.False(t, p.Contains("a"))
}
