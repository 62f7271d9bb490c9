package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneprompt/oneprompt/pkg/protocol"
)

type fakeAgent struct{ name string }

func (a *fakeAgent) Name() string         { return a.name }
func (a *fakeAgent) StrategyName() string { return "default" }

func newTestService() *Service {
	return NewService(NewStore(), NewQueue())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusInDraft, StatusInQueue, true},
		{StatusInQueue, StatusInProgress, true},
		{StatusInProgress, StatusDone, true},
		{StatusInProgress, StatusError, true},
		{StatusInProgress, StatusInQueue, true}, // requeue path for waiting jobs
		{StatusInQueue, StatusDone, false},
		{StatusDone, StatusInProgress, false},
		{StatusDone, StatusInQueue, false},
		{StatusError, StatusInQueue, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStore_MarkEnforcesTransitions(t *testing.T) {
	store := NewStore()
	j := &Job{ID: "j1", Status: StatusInQueue}
	require.NoError(t, store.Insert(j))

	require.NoError(t, store.Mark("j1", StatusInProgress))
	require.NoError(t, store.Mark("j1", StatusDone))

	err := store.Mark("j1", StatusInProgress)
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, StatusDone, terr.From)

	assert.ErrorIs(t, store.Mark("ghost", StatusDone), ErrJobNotFound)
}

func TestStore_SnapshotIsolation(t *testing.T) {
	store := NewStore()
	j := &Job{ID: "j1", Status: StatusInQueue, DependsOn: []string{"a"}}
	require.NoError(t, store.Insert(j))

	snap, ok := store.Get("j1")
	require.True(t, ok)

	// Mutating the snapshot must not leak into the store.
	snap.DependsOn = append(snap.DependsOn, "b")
	snap.ChatHistory = append(snap.ChatHistory, protocol.User("x"))

	again, _ := store.Get("j1")
	assert.Equal(t, []string{"a"}, again.DependsOn)
	assert.Empty(t, again.ChatHistory)
}

func TestStore_DoneJobsMatchesStatuses(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Insert(&Job{ID: "a", Status: StatusInQueue}))
	require.NoError(t, store.Insert(&Job{ID: "b", Status: StatusInQueue}))
	require.NoError(t, store.Insert(&Job{ID: "c", Status: StatusInQueue}))

	require.NoError(t, store.Mark("a", StatusInProgress))
	require.NoError(t, store.Mark("a", StatusDone))
	require.NoError(t, store.Mark("b", StatusInProgress))
	require.NoError(t, store.Mark("b", StatusError))

	done := store.DoneJobs()
	assert.Len(t, done, 1)
	_, ok := done["a"]
	assert.True(t, ok)

	// done_jobs() equals exactly the set of jobs whose status is done.
	for id := range done {
		status, _ := store.Status(id)
		assert.Equal(t, StatusDone, status)
	}
}

func TestService_Submit(t *testing.T) {
	svc := newTestService()
	agent := &fakeAgent{name: "Echo"}

	id, err := svc.Submit(agent, "hi", "default", nil)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Present in the store before any consumer sees it on the queue.
	snap, ok := svc.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusInQueue, snap.Status)
	assert.Equal(t, "hi", snap.InitialText)
	assert.Equal(t, "Echo", snap.Agent.Name())

	queued, err := svc.Queue().Get()
	require.NoError(t, err)
	assert.Equal(t, id, queued)
}

func TestService_Unmet(t *testing.T) {
	svc := newTestService()
	agent := &fakeAgent{name: "Echo"}

	parentID, err := svc.Submit(agent, "parent", "default", nil)
	require.NoError(t, err)
	childID, err := svc.Submit(agent, "child", "default", nil)
	require.NoError(t, err)

	// No dependencies: never unmet.
	parent, _ := svc.Get(parentID)
	assert.Empty(t, svc.Unmet(&parent))

	require.NoError(t, svc.Store().Update(parentID, func(j *Job) error {
		j.DependsOn = append(j.DependsOn, childID)
		return nil
	}))

	parent, _ = svc.Get(parentID)
	assert.Equal(t, []string{childID}, svc.Unmet(&parent))

	require.NoError(t, svc.Store().Mark(childID, StatusInProgress))
	require.NoError(t, svc.Store().Mark(childID, StatusDone))

	parent, _ = svc.Get(parentID)
	assert.Empty(t, svc.Unmet(&parent))
}

func TestStore_UpdateAtomicWait(t *testing.T) {
	svc := newTestService()
	agent := &fakeAgent{name: "P"}

	parentID, err := svc.Submit(agent, "parent", "default", nil)
	require.NoError(t, err)
	require.NoError(t, svc.Store().Mark(parentID, StatusInProgress))

	// The _start_and_wait mutation: dependency, transcript note, requeue.
	err = svc.Store().Update(parentID, func(j *Job) error {
		j.DependsOn = append(j.DependsOn, "child1")
		j.ChatHistory = append(j.ChatHistory, protocol.SystemNote("Job child1 has been started."))
		j.Status = StatusInQueue
		return nil
	})
	require.NoError(t, err)

	snap, _ := svc.Get(parentID)
	assert.Equal(t, StatusInQueue, snap.Status)
	assert.Equal(t, []string{"child1"}, snap.DependsOn)
	require.Len(t, snap.ChatHistory, 1)
	assert.Equal(t, protocol.RoleSystem, snap.ChatHistory[0].Role)
}
