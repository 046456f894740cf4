// Package codec provides the value (de)serializers used by sweepcache.
// Values are encoded to bytes on write and decoded fresh on every read, so
// callers never receive a value that aliases stored state.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
