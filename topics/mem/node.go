package mem

import (
	"strings"

	"github.com/VolantMQ/mqcore/packet"
	topicsTypes "github.com/VolantMQ/mqcore/topics/types"
)

type topicSubscriber struct {
	s   topicsTypes.Subscriber
	qos packet.QosType
}

type subscribers map[uintptr]*topicSubscriber

type publishes map[uintptr]*topicsTypes.Subscription

type node struct {
	subs     subscribers
	parent   *node
	children map[string]*node
}

func newNode(parent *node) *node {
	return &node{
		subs:     make(subscribers),
		children: make(map[string]*node),
		parent:   parent,
	}
}

func (mT *provider) leafInsertNode(levels []string) *node {
	root := mT.root

	for _, level := range levels {
		// Add node if it doesn't already exist
		n, ok := root.children[level]
		if !ok {
			n = newNode(root)

			root.children[level] = n
		}

		root = n
	}

	return root
}

func (mT *provider) leafSearchNode(levels []string) *node {
	root := mT.root

	// run down and try get path matching given topic
	for _, token := range levels {
		n, ok := root.children[token]
		if !ok {
			return nil
		}

		root = n
	}

	return root
}

func (mT *provider) subscriptionInsert(filter string, sub topicsTypes.Subscriber, qos packet.QosType) bool {
	levels := strings.Split(filter, topicsTypes.SEP)

	root := mT.leafInsertNode(levels)

	// Let's see if the subscriber is already on the list and just update QoS if so
	// Otherwise create new entry
	exists := false
	if s, ok := root.subs[sub.Hash()]; !ok {
		root.subs[sub.Hash()] = &topicSubscriber{
			s:   sub,
			qos: qos,
		}
	} else {
		s.qos = qos
		exists = true
	}

	return exists
}

func (mT *provider) subscriptionRemove(filter string, sub topicsTypes.Subscriber) error {
	levels := strings.Split(filter, topicsTypes.SEP)

	var err error

	root := mT.leafSearchNode(levels)
	if root == nil {
		return topicsTypes.ErrNotFound
	}

	// path matching the filter exists.
	// if subscriber argument is nil remove all of subscribers
	// otherwise try remove subscriber or set error if not exists
	if sub == nil {
		root.subs = make(subscribers)
	} else {
		id := sub.Hash()
		if _, ok := root.subs[id]; ok {
			delete(root.subs, id)
		} else {
			err = topicsTypes.ErrNotFound
		}
	}

	// Run up and on each level and check if level has subscriptions and nested nodes
	// If both are empty tell parent node to remove that token
	level := len(levels)
	for leafNode := root; leafNode != nil && leafNode.parent != nil; leafNode = leafNode.parent {
		if len(leafNode.subs) == 0 && len(leafNode.children) == 0 {
			delete(leafNode.parent.children, levels[level-1])
		}

		level--
	}

	return err
}

func subscriptionRecurseSearch(root *node, filter []string, levels []string, p publishes) {
	if len(levels) == 0 {
		// leaf level of the topic
		// get all subscribers and return
		root.getSubscribers(filter, p)

		// parent level of '#' matches as well
		if n, ok := root.children[topicsTypes.MWC]; ok {
			n.getSubscribers(append(filter, topicsTypes.MWC), p)
		}
	} else {
		if n, ok := root.children[topicsTypes.MWC]; ok {
			n.getSubscribers(append(filter, topicsTypes.MWC), p)
		}

		if n, ok := root.children[levels[0]]; ok {
			subscriptionRecurseSearch(n, append(filter, levels[0]), levels[1:], p)
		}

		if n, ok := root.children[topicsTypes.SWC]; ok {
			subscriptionRecurseSearch(n, append(filter, topicsTypes.SWC), levels[1:], p)
		}
	}
}

func (mT *provider) subscriptionSearch(topic string, p publishes) {
	root := mT.root
	levels := strings.Split(topic, topicsTypes.SEP)
	level := levels[0]

	// topics starting with '$' are never matched by wildcards at first level
	if !strings.HasPrefix(level, topicsTypes.SYS) {
		subscriptionRecurseSearch(root, make([]string, 0, len(levels)+1), levels, p)
	} else if n, ok := root.children[level]; ok {
		subscriptionRecurseSearch(n, []string{level}, levels[1:], p)
	}
}

func (sn *node) getSubscribers(filter []string, p publishes) {
	for id, sub := range sn.subs {
		if s, ok := p[id]; ok {
			if s.QoS < sub.qos {
				s.QoS = sub.qos
				s.Filter = strings.Join(filter, topicsTypes.SEP)
			}
		} else {
			p[id] = &topicsTypes.Subscription{
				Filter:     strings.Join(filter, topicsTypes.SEP),
				QoS:        sub.qos,
				Subscriber: sub.s,
			}
		}
	}
}
