package omap

import "fmt"

// KVPair represents tuple
type KVPair[K comparable, V any] struct {
	Key   K
	Value V
}

// String representations of the key pair
func (k *KVPair[K, V]) String() string {
	return fmt.Sprintf("%v:%v", k.Key, k.Value)
}
