// Copyright 2026 The IPC Fabric Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package queue

import "io"

// Drain writes queued entries to w, one at a time, popping and signaling
// each only after a successful write, and recursing (via the loop below)
// while the queue remains non-empty. If w returns an error the drain
// halts with the entry still at the head, so the same bytes are retried
// on the next call once the caller has a writable socket again — this is
// spec.md §4.2's "If the socket is not writable, the drain halts and
// will resume on next connection".
//
// Drain is a no-op if another drain is already in progress on this
// queue; the caller is expected to invoke Drain again after the
// in-progress one finishes (e.g. on the next connect or write-ready
// event).
//
// Once the queue looks empty, Drain clears the draining flag and then
// re-checks Head(), re-claiming the flag if an entry is there: a Push
// landing between "queue looks empty" and "flag cleared" is served by
// this same drain instead of sitting unserved until some unrelated later
// drain happened to pick it up.
func Drain(q *Queue, w io.Writer) error {
	if q.Draining(true) {
		return nil
	}
	for {
		for {
			e := q.Head()
			if e == nil {
				break
			}
			if _, err := w.Write(e.Frame); err != nil {
				// Leave the entry at the head; only a successful write
				// pops it, so the same bytes are retried next drain.
				q.SetDraining(false)
				return err
			}
			q.Pop()
			if e.Done != nil {
				e.Done <- nil
				close(e.Done)
			}
		}
		q.SetDraining(false)
		if q.Head() == nil {
			return nil
		}
		if q.Draining(true) {
			// Another drain claimed the flag first; it will see
			// what we just pushed.
			return nil
		}
	}
}
