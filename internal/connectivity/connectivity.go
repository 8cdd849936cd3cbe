/*
Copyright 2024 Docsync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package connectivity reports whether the backend is reachable and notifies
subscribers when that changes.
*/
package connectivity

import "sync"

// Monitor is a reachability signal with a change stream.
type Monitor interface {
	Reachable() bool
	// Subscribe registers fn for every change of reachability and returns a
	// function that removes it.
	Subscribe(fn func(reachable bool)) (unsubscribe func())
}

type broadcaster struct {
	// held while subscribers run so they see changes in the order they happened
	deliverMu sync.Mutex

	mu        sync.Mutex
	reachable bool
	subs      map[int]func(bool)
	next      int
}

func (b *broadcaster) Reachable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reachable
}

func (b *broadcaster) Subscribe(fn func(bool)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[int]func(bool))
	}
	id := b.next
	b.next++
	b.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// set records the new state and, when it changed, calls subscribers. Changes
// are delivered one at a time in the order they were recorded; a subscriber
// must not call set itself.
func (b *broadcaster) set(reachable bool) bool {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	if b.reachable == reachable {
		b.mu.Unlock()
		return false
	}
	b.reachable = reachable
	subs := make([]func(bool), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(reachable)
	}
	return true
}

// Manual is a Monitor driven by explicit Set calls, for platforms that push
// reachability events and for tests.
type Manual struct {
	broadcaster
}

func NewManual(initial bool) *Manual {
	m := &Manual{}
	m.reachable = initial
	return m
}

// Set updates reachability and reports whether it changed.
func (m *Manual) Set(reachable bool) bool {
	return m.set(reachable)
}
