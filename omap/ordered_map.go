package omap

import (
	"fmt"
	"strings"
)

// Map keeps insertion order of keys. Re-setting existing key keeps its position.
// Map is not safe for concurrent use
type Map[K comparable, V any] interface {
	Set(key K, value V)
	Get(key K) (V, bool)
	Delete(key K) bool
	Iterator() func() (*KVPair[K, V], bool)
	Front() (*KVPair[K, V], bool)
	Len() int
	Clear()
}

type impl[K comparable, V any] struct {
	store  map[K]V
	mapper map[K]*node[K]
	root   *node[K]
}

// New map object
func New[K comparable, V any]() Map[K, V] {
	om := &impl[K, V]{
		store:  make(map[K]V),
		mapper: make(map[K]*node[K]),
		root:   newRootNode[K](),
	}
	return om
}

func (om *impl[K, V]) Set(key K, value V) {
	if _, ok := om.store[key]; !ok {
		om.mapper[key] = om.root.Add(key)
	}
	om.store[key] = value
}

func (om *impl[K, V]) Get(key K) (V, bool) {
	val, ok := om.store[key]
	return val, ok
}

func (om *impl[K, V]) Delete(key K) bool {
	n, ok := om.mapper[key]
	if !ok {
		return false
	}

	n.unlink()
	delete(om.mapper, key)
	delete(om.store, key)

	return true
}

func (om *impl[K, V]) String() string {
	builder := make([]string, 0, len(om.store))

	iter := om.Iterator()
	for kv, ok := iter(); ok; kv, ok = iter() {
		builder = append(builder, kv.String())
	}
	return fmt.Sprintf("Map[%s]", strings.Join(builder, ", "))
}

// Iterator walks entries in insertion order.
// Deleting entry returned last by iterator is allowed during iteration
func (om *impl[K, V]) Iterator() func() (*KVPair[K, V], bool) {
	root := om.root
	curr := root.Next
	return func() (*KVPair[K, V], bool) {
		if curr != nil && curr != root {
			tmp := curr
			curr = curr.Next
			return &KVPair[K, V]{tmp.Value, om.store[tmp.Value]}, true
		}
		return nil, false
	}
}

func (om *impl[K, V]) Front() (*KVPair[K, V], bool) {
	if om.root.Next == om.root {
		return nil, false
	}

	key := om.root.Next.Value
	return &KVPair[K, V]{key, om.store[key]}, true
}

func (om *impl[K, V]) Len() int {
	return len(om.store)
}

func (om *impl[K, V]) Clear() {
	om.store = make(map[K]V)
	om.mapper = make(map[K]*node[K])
	om.root = newRootNode[K]()
}
