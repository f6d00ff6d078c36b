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

package mem

import (
	"sync"

	"github.com/VolantMQ/mqcore/configuration"
	"github.com/VolantMQ/mqcore/packet"
	"github.com/VolantMQ/mqcore/systree"
	topicsTypes "github.com/VolantMQ/mqcore/topics/types"
	"go.uber.org/zap"
)

type provider struct {
	smu    sync.RWMutex
	root   *node
	stat   systree.SubscriptionsStat
	maxQoS packet.QosType
	log    *zap.SugaredLogger
}

var _ topicsTypes.Provider = (*provider)(nil)

// NewMemProvider returns an new instance of the provider, which is implements the
// TopicsProvider interface. provider is a hidden struct that stores the topic
// subscriptions in memory. The content is not persisted so
// when the server goes, everything will be gone. Use with care.
func NewMemProvider(config *topicsTypes.MemConfig) (topicsTypes.Provider, error) {
	p := &provider{
		stat:   config.Stat,
		maxQoS: config.MaxQoS,
		root:   newNode(nil),
		log:    configuration.GetLogger().Named("topics").Named(config.Name),
	}

	if p.stat == nil {
		p.stat = systree.SubscriptionsStatNop{}
	}

	if !p.maxQoS.IsValid() {
		p.maxQoS = packet.QoS2
	}

	return p, nil
}

// Subscribe registers subscriber on filter and returns granted QoS.
// Repeated subscribe of the same subscriber replaces QoS of existing subscription
func (mT *provider) Subscribe(filter string, sub topicsTypes.Subscriber, qos packet.QosType) (packet.QosType, error) {
	if !qos.IsValid() {
		return packet.QosFailure, topicsTypes.ErrInvalidQoS
	}

	if sub == nil {
		return packet.QosFailure, topicsTypes.ErrInvalidSubscriber
	}

	if err := topicsTypes.ValidateFilter(filter); err != nil {
		return packet.QosFailure, err
	}

	granted := packet.MinQoS(qos, mT.maxQoS)

	mT.smu.Lock()
	exists := mT.subscriptionInsert(filter, sub, granted)
	mT.smu.Unlock()

	if !exists {
		mT.stat.Subscribed()
	}

	mT.log.Debugw("subscribed", "filter", filter, "granted", granted.Desc())

	return granted, nil
}

func (mT *provider) UnSubscribe(filter string, sub topicsTypes.Subscriber) error {
	mT.smu.Lock()
	err := mT.subscriptionRemove(filter, sub)
	mT.smu.Unlock()

	if err == nil {
		mT.stat.UnSubscribed()
	}

	return err
}

func (mT *provider) Subscribers(topic string) []topicsTypes.Subscription {
	p := make(publishes)

	mT.smu.RLock()
	mT.subscriptionSearch(topic, p)
	mT.smu.RUnlock()

	res := make([]topicsTypes.Subscription, 0, len(p))
	for _, s := range p {
		res = append(res, *s)
	}

	return res
}

func (mT *provider) Close() error {
	mT.smu.Lock()
	mT.root = newNode(nil)
	mT.smu.Unlock()

	return nil
}
