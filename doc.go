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

// Package mqcore is core of MQTT 3.1 and 3.1.1 broker.
//
// Packages are layered bottom up:
//
//   - topics matches topic names against subscription filters
//   - store keeps retained messages and per session in-flight tables
//   - clients owns sessions lifecycle: resume, takeover, expiry and will
//   - delivery runs QoS 0, 1 and 2 flows and fans messages out to subscribers
//   - connection supervises single network connection from CONNECT till close
//   - transport translates MQTT frames into logical packets over TCP or WebSocket
//   - server assembles everything above into broker
//
// MQTT is a Client Server publish/subscribe messaging transport protocol. It is
// light weight, open, simple, and designed so as to be easy to implement.
// It runs over TCP/IP, or over other network protocols that provide
// ordered, lossless, bi-directional connections. Three qualities of service are provided:
//
//   - "At most once", where messages are delivered according to the best efforts
//     of the operating environment. Message loss can occur.
//   - "At least once", where messages are assured to arrive but duplicates can occur.
//   - "Exactly once", where message are assured to arrive exactly once.
//
// Command mqcored in cmd runs the broker configured from yaml file.
package mqcore
