package secure

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureBuffer_Open(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{"text", []byte("my-secret-password")},
		{"binary", []byte{0x00, 0xFF, 0x10, 0x20}},
		{"large", bytes.Repeat([]byte("x"), 4096)},
		{"empty", []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// memguard wipes its input, so keep a separate copy.
			expected := append([]byte(nil), tt.data...)
			buf, err := NewSecureBuffer(tt.data)
			require.NoError(t, err)
			defer buf.Destroy()

			for i := 0; i < 2; i++ {
				locked, err := buf.Open()
				require.NoError(t, err)
				assert.Equal(t, len(expected), len(locked.Bytes()))
				assert.True(t, bytes.Equal(expected, locked.Bytes()), "open %d", i)
				locked.Destroy()
			}
		})
	}
}

func TestSecureBuffer_Destroy(t *testing.T) {
	t.Parallel()

	buf, err := NewSecureBuffer([]byte("secret-to-destroy"))
	require.NoError(t, err)

	buf.Destroy()
	buf.Destroy()

	locked, err := buf.Open()
	require.NoError(t, err)
	defer locked.Destroy()
	assert.Empty(t, locked.Bytes())
}

func TestSecureBuffer_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	buf, err := NewSecureBuffer([]byte("concurrent-secret"))
	require.NoError(t, err)
	defer buf.Destroy()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			locked, err := buf.Open()
			if !assert.NoError(t, err) {
				return
			}
			defer locked.Destroy()
			assert.Equal(t, "concurrent-secret", string(locked.Bytes()))
		}()
	}
	wg.Wait()
}

func BenchmarkSecureBuffer(b *testing.B) {
	b.Run("Open", func(b *testing.B) {
		buf, _ := NewSecureBuffer([]byte("benchmark-secret-data"))
		defer buf.Destroy()

		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			locked, _ := buf.Open()
			locked.Destroy()
		}
	})
}
