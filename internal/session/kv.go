// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import "context"

// KVAdapter is the pluggable write-through interface to an external
// key-value backend (spec C1, §1 "persistence backend" collaborator, §6
// "Persisted state layout"). The in-memory Store is always authoritative;
// an adapter failure is logged by the caller and never aborts a mutation.
type KVAdapter interface {
	// Put writes the full Session document under sessionCode.
	Put(ctx context.Context, sessionCode string, doc *Session) error
	// Delete removes the document for sessionCode, if any.
	Delete(ctx context.Context, sessionCode string) error
}

// NoopKV is a KVAdapter that discards everything. It is the adapter
// internal/app wires in; KV_BACKEND is read into the config but selects no
// other adapter, so documents are not persisted across process restarts.
type NoopKV struct{}

// Put implements KVAdapter.
func (NoopKV) Put(context.Context, string, *Session) error { return nil }

// Delete implements KVAdapter.
func (NoopKV) Delete(context.Context, string) error { return nil }
