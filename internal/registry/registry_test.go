// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachAndListRole(t *testing.T) {
	r := New()
	r.Attach("abcdef", "ep-1", RoleStudent, "alice", make(Outbound, 1))
	r.Attach("abcdef", "ep-2", RoleTeacher, "Ms. T", make(Outbound, 1))

	students := r.ListRole("abcdef", RoleStudent)
	teachers := r.ListRole("abcdef", RoleTeacher)
	assert.Equal(t, []string{"ep-1"}, students)
	assert.Equal(t, []string{"ep-2"}, teachers)
}

func TestBroadcast_ExcludesSender(t *testing.T) {
	r := New()
	sendA := make(Outbound, 1)
	sendB := make(Outbound, 1)
	r.Attach("abcdef", "ep-a", RoleStudent, "alice", sendA)
	r.Attach("abcdef", "ep-b", RoleStudent, "bob", sendB)

	r.Broadcast("abcdef", "hello", "ep-a")

	select {
	case <-sendA:
		t.Fatal("sender should not receive its own broadcast")
	default:
	}
	require.Len(t, sendB, 1)
	assert.Equal(t, "hello", <-sendB)
}

func TestSendToRole_OnlyTargetsThatRole(t *testing.T) {
	r := New()
	teacherCh := make(Outbound, 1)
	studentCh := make(Outbound, 1)
	r.Attach("abcdef", "teacher-1", RoleTeacher, "Ms. T", teacherCh)
	r.Attach("abcdef", "student-1", RoleStudent, "alice", studentCh)

	r.SendToRole("abcdef", RoleTeacher, "update")

	require.Len(t, teacherCh, 1)
	assert.Empty(t, studentCh)
}

func TestDetach_ReportsTeacherPresence(t *testing.T) {
	r := New()
	r.Attach("abcdef", "teacher-1", RoleTeacher, "Ms. T", make(Outbound, 1))
	r.Attach("abcdef", "teacher-2", RoleTeacher, "Mr. B", make(Outbound, 1))

	_, teachersRemain := r.Detach("abcdef", "teacher-1")
	assert.True(t, teachersRemain)

	_, teachersRemain = r.Detach("abcdef", "teacher-2")
	assert.False(t, teachersRemain)
}

func TestDetach_DoesNotCloseSendChannel(t *testing.T) {
	r := New()
	ch := make(Outbound, 1)
	r.Attach("abcdef", "ep-1", RoleStudent, "alice", ch)
	r.Detach("abcdef", "ep-1")

	// The channel is owned by the endpoint's own connection pump, not the
	// registry, so Detach must not close it: a concurrent Broadcast/
	// SendToRole/Send racing the detach would otherwise panic on a send to
	// a closed channel.
	r.Send("abcdef", "ep-1", "after-detach")
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should not have been closed")
		t.Fatal("detached member should not receive further sends")
	default:
	}
}

func TestHasRole(t *testing.T) {
	r := New()
	assert.False(t, r.HasRole("abcdef", RoleTeacher))
	r.Attach("abcdef", "teacher-1", RoleTeacher, "Ms. T", make(Outbound, 1))
	assert.True(t, r.HasRole("abcdef", RoleTeacher))
}

func TestEnqueue_DropsOnFullBuffer(t *testing.T) {
	r := New()
	ch := make(Outbound, 1)
	r.Attach("abcdef", "ep-1", RoleStudent, "alice", ch)

	r.Send("abcdef", "ep-1", "first")
	r.Send("abcdef", "ep-1", "second") // buffer full, should be dropped silently

	assert.Equal(t, "first", <-ch)
	select {
	case <-ch:
		t.Fatal("second send should have been dropped")
	default:
	}
}
