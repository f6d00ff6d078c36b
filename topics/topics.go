// Copyright (c) 2014 The VolantMQ Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package topics deals with MQTT topic names, topic filters and subscriptions.
//   - "Topic name" is a / separated string that could contain #, + and $
//   - / in topic name separates the string into "topic levels"
//   - # is a multi-level wildcard, and it must be the last character in the
//     topic name. It represents the parent and all children levels.
//   - + is a single level wildcard. It must be the only character in the
//     topic level. It represents all names in the current level.
//   - $ is a special character that says the topic is a system level topic
package topics

import (
	"strings"

	"github.com/VolantMQ/mqcore/topics/mem"
	topicsTypes "github.com/VolantMQ/mqcore/topics/types"
)

// New topic provider
func New(config topicsTypes.ProviderConfig) (topicsTypes.Provider, error) {
	if config == nil {
		return nil, topicsTypes.ErrInvalidArgs
	}

	switch cfg := config.(type) {
	case *topicsTypes.MemConfig:
		return mem.NewMemProvider(cfg)
	default:
		return nil, topicsTypes.ErrUnknownProvider
	}
}

// ValidateTopic checks topic name suitable for publishing
func ValidateTopic(topic string) error {
	return topicsTypes.ValidateTopic(topic)
}

// ValidateFilter checks subscription filter
func ValidateFilter(filter string) error {
	return topicsTypes.ValidateFilter(filter)
}

// Match reports whether topic name is matched by filter.
// Both arguments expected to be valid
func Match(topic, filter string) bool {
	// wildcards at first level never match system topics
	if strings.HasPrefix(topic, topicsTypes.SYS) &&
		(strings.HasPrefix(filter, topicsTypes.SWC) || strings.HasPrefix(filter, topicsTypes.MWC)) {
		return false
	}

	for {
		var tLevel, fLevel string
		var tMore, fMore bool

		tLevel, topic, tMore = strings.Cut(topic, topicsTypes.SEP)
		fLevel, filter, fMore = strings.Cut(filter, topicsTypes.SEP)

		switch fLevel {
		case topicsTypes.MWC:
			return true
		case topicsTypes.SWC:
		default:
			if fLevel != tLevel {
				return false
			}
		}

		switch {
		case tMore && fMore:
			continue
		case !tMore && !fMore:
			return true
		case !tMore && fMore:
			// parent level is matched by trailing '#'
			return filter == topicsTypes.MWC
		default:
			return false
		}
	}
}

// MatchAll returns subscriptions from given set whose filter matches topic,
// in order of appearance
func MatchAll(topic string, subs []topicsTypes.Subscription) []topicsTypes.Subscription {
	var res []topicsTypes.Subscription

	for _, s := range subs {
		if Match(topic, s.Filter) {
			res = append(res, s)
		}
	}

	return res
}
