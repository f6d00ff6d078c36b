package systree

import (
	"sync/atomic"
)

type stat struct {
	curr *dynamicValueInteger
	max  *dynamicValueInteger
}

type subscriptionsStat struct {
	stat
}

func newStat(topicPrefix string, retained *[]DynamicValue) stat {
	s := stat{
		curr: newDynamicValueInteger(topicPrefix + "/current"),
		max:  newDynamicValueInteger(topicPrefix + "/max"),
	}

	*retained = append(*retained, s.max, s.curr)

	return s
}

func newStatSubscription(topicPrefix string, retained *[]DynamicValue) subscriptionsStat {
	return subscriptionsStat{
		stat: newStat(topicPrefix+"/subscriptions", retained),
	}
}

func (s *stat) inc() {
	newVal := s.curr.add(1)
	for {
		old := s.max.load()
		if old >= newVal || atomic.CompareAndSwapUint64(&s.max.val, old, newVal) {
			return
		}
	}
}

func (s *stat) dec() {
	s.curr.add(^uint64(0))
}

// Subscribed add to statistic subscriber
func (t *subscriptionsStat) Subscribed() {
	t.inc()
}

// UnSubscribed remove subscriber from statistic
func (t *subscriptionsStat) UnSubscribed() {
	t.dec()
}
