package secure

import (
	"fmt"
	"sort"
	"sync"
)

// Values holds a set of resolved secrets, each in its own enclave, from
// the moment they are resolved until they are handed to a child process.
type Values struct {
	mu   sync.Mutex
	bufs map[string]*SecureBuffer
}

// Seal copies every value into an enclave.
func Seal(values map[string]string) (*Values, error) {
	v := &Values{bufs: make(map[string]*SecureBuffer, len(values))}
	for key, value := range values {
		buf, err := NewSecureBuffer([]byte(value))
		if err != nil {
			v.Destroy()
			return nil, fmt.Errorf("failed to protect %s: %w", key, err)
		}
		v.bufs[key] = buf
	}
	return v, nil
}

// Keys returns the sealed keys in sorted order.
func (v *Values) Keys() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	keys := make([]string, 0, len(v.bufs))
	for k := range v.bufs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of sealed values.
func (v *Values) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.bufs)
}

// Each opens the values one at a time, in key order, and passes the
// plaintext to fn. The plaintext is wiped when fn returns, so fn must copy
// what it keeps.
func (v *Values) Each(fn func(key, value string) error) error {
	for _, key := range v.Keys() {
		v.mu.Lock()
		buf := v.bufs[key]
		v.mu.Unlock()

		locked, err := buf.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", key, err)
		}
		err = fn(key, string(locked.Bytes()))
		locked.Destroy()
		if err != nil {
			return err
		}
	}
	return nil
}

// Destroy drops every enclave.
func (v *Values) Destroy() {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, buf := range v.bufs {
		buf.Destroy()
	}
	v.bufs = map[string]*SecureBuffer{}
}
