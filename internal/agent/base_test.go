package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivemind-labs/hiveflow/internal/core"
)

func testAgent(execute ExecuteFunc) *Base {
	a := New(Options{
		Role:         "tester",
		Capabilities: []string{core.CapabilityFor(core.TaskTypeCodeGeneration)},
		Execute:      execute,
	})
	a.Start()
	return a
}

func TestAcceptRequiresActiveCapacityCapability(t *testing.T) {
	a := New(Options{
		Role:               "tester",
		Capabilities:       []string{core.CapabilityFor(core.TaskTypeCodeGeneration)},
		MaxConcurrentTasks: 1,
		Execute: func(ctx context.Context, _ *Base, _ *core.Task) (map[string]interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	task := core.NewTask("t", core.TaskTypeCodeGeneration)
	assert.False(t, a.Accept(task), "inactive agent must reject")

	a.Start()
	assert.True(t, a.Accept(task))
	assert.False(t, a.Accept(core.NewTask("t", core.TaskTypeDebugging)), "missing capability")

	// Saturate the single slot.
	ctx, cancel := context.WithCancel(context.Background())
	go a.Process(ctx, core.NewTask("slow", core.TaskTypeCodeGeneration))
	require.Eventually(t, func() bool { return len(a.Status().CurrentTasks) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, a.Accept(task), "at capacity")

	cancel()
	require.Eventually(t, func() bool { return len(a.Status().CurrentTasks) == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, a.Accept(task))
}

func TestProcessSuccessPipeline(t *testing.T) {
	var sawWorking bool
	a := testAgent(func(_ context.Context, ag *Base, task *core.Task) (map[string]interface{}, error) {
		v, ok := ag.Memory.GetWorking("task_id")
		sawWorking = ok && v == string(task.ID)
		return map[string]interface{}{"out": "done"}, nil
	})

	task := core.NewTask("t", core.TaskTypeCodeGeneration)
	done := a.Process(context.Background(), task)

	assert.True(t, sawWorking, "working memory carries the task id during execution")
	assert.Equal(t, core.TaskStatusCompleted, done.Status)
	assert.Equal(t, a.ID(), done.AssignedAgent)
	assert.Equal(t, "done", done.Result["out"])
	assert.Zero(t, a.Memory.WorkingSize(), "working memory cleared on exit")
	assert.Equal(t, 1, a.Status().TasksCompleted)
}

func TestProcessFailureStaysLocal(t *testing.T) {
	a := testAgent(func(context.Context, *Base, *core.Task) (map[string]interface{}, error) {
		return nil, errors.New("exploded")
	})

	done := a.Process(context.Background(), core.NewTask("t", core.TaskTypeCodeGeneration))
	assert.Equal(t, core.TaskStatusFailed, done.Status)
	assert.Equal(t, "exploded", done.Error)
	assert.Zero(t, a.Memory.WorkingSize())
	assert.Equal(t, 1, a.Status().TasksFailed)
}

func TestProcessPanicBecomesFailure(t *testing.T) {
	a := testAgent(func(context.Context, *Base, *core.Task) (map[string]interface{}, error) {
		panic("kaboom")
	})

	done := a.Process(context.Background(), core.NewTask("t", core.TaskTypeCodeGeneration))
	assert.Equal(t, core.TaskStatusFailed, done.Status)
	assert.Contains(t, done.Error, "kaboom")
}

func TestProcessCancellation(t *testing.T) {
	a := testAgent(func(ctx context.Context, _ *Base, _ *core.Task) (map[string]interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := a.Process(ctx, core.NewTask("t", core.TaskTypeCodeGeneration))
	assert.Equal(t, core.TaskStatusCancelled, done.Status)
}

func TestLookupTaskCoversFinished(t *testing.T) {
	a := testAgent(func(context.Context, *Base, *core.Task) (map[string]interface{}, error) {
		return map[string]interface{}{}, nil
	})

	task := core.NewTask("t", core.TaskTypeCodeGeneration)
	a.Process(context.Background(), task)

	found, ok := a.LookupTask(task.ID)
	require.True(t, ok)
	assert.True(t, found.IsTerminal())

	_, ok = a.LookupTask(core.NewTaskID())
	assert.False(t, ok)
}

func TestLookupTaskDuringProcessing(t *testing.T) {
	release := make(chan struct{})
	a := testAgent(func(context.Context, *Base, *core.Task) (map[string]interface{}, error) {
		<-release
		return map[string]interface{}{}, nil
	})

	task := core.NewTask("t", core.TaskTypeCodeGeneration)
	done := make(chan *core.Task, 1)
	go func() { done <- a.Process(context.Background(), task) }()

	// Hammer the read path while the status transitions happen.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					a.LookupTask(task.ID)
				}
			}
		}()
	}

	require.Eventually(t, func() bool { return len(a.Status().CurrentTasks) == 1 }, time.Second, time.Millisecond)
	close(release)
	result := <-done
	close(stop)
	wg.Wait()

	assert.Equal(t, core.TaskStatusCompleted, result.Status)
}

func TestAssignmentClaimsSlotAtomically(t *testing.T) {
	release := make(chan struct{})
	a := New(Options{
		Role:               "tester",
		Capabilities:       []string{core.CapabilityFor(core.TaskTypeCodeGeneration)},
		MaxConcurrentTasks: 1,
		Execute: func(context.Context, *Base, *core.Task) (map[string]interface{}, error) {
			<-release
			return map[string]interface{}{}, nil
		},
	})
	a.Start()
	defer close(release)

	// Racing assignments must never oversubscribe the single slot.
	var accepted int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task := core.NewTask("t", core.TaskTypeCodeGeneration)
			reply, err := a.Receive(context.Background(), core.NewMessage("bus", a.ID(), core.MsgTaskAssignment, map[string]interface{}{
				"task": task,
			}))
			if err == nil && reply != nil && reply.Content["accepted"] == true {
				atomic.AddInt32(&accepted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&accepted))
	assert.Len(t, a.Status().CurrentTasks, 1)
}

func TestReceiveCollaborationHandshake(t *testing.T) {
	a := testAgent(nil)

	reply, err := a.Receive(context.Background(), core.NewMessage("peer", a.ID(), core.MsgCollaborationRequest, nil))
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, core.MsgCollaborationAccepted, reply.Type)
	assert.Equal(t, "peer", reply.To)
	assert.Contains(t, a.Status().Partners, "peer")
}

func TestReceiveTaskAssignment(t *testing.T) {
	a := testAgent(func(context.Context, *Base, *core.Task) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	})

	task := core.NewTask("t", core.TaskTypeCodeGeneration)
	reply, err := a.Receive(context.Background(), core.NewMessage("bus", a.ID(), core.MsgTaskAssignment, map[string]interface{}{
		"task": task,
	}))
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, core.MsgTaskResponse, reply.Type)
	assert.Equal(t, true, reply.Content["accepted"])

	require.Eventually(t, func() bool {
		done, ok := a.LookupTask(task.ID)
		return ok && done.IsTerminal()
	}, time.Second, 5*time.Millisecond)
}

func TestReceiveStatusInquiryAndUnknown(t *testing.T) {
	a := testAgent(nil)

	reply, err := a.Receive(context.Background(), core.NewMessage("x", a.ID(), core.MsgStatusInquiry, nil))
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, core.MsgStatusResponse, reply.Type)

	reply, err = a.Receive(context.Background(), core.NewMessage("x", a.ID(), core.MessageType("mystery"), nil))
	require.NoError(t, err)
	assert.Nil(t, reply)

	// Both messages landed in conversation history.
	assert.Len(t, a.Memory.History(), 2)
}

func TestStopCancelsAndClearsSession(t *testing.T) {
	a := testAgent(func(ctx context.Context, _ *Base, _ *core.Task) (map[string]interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	a.Memory.SetShort("session", "data")

	resultCh := make(chan *core.Task, 1)
	go func() {
		resultCh <- a.Process(context.Background(), core.NewTask("t", core.TaskTypeCodeGeneration))
	}()
	require.Eventually(t, func() bool { return len(a.Status().CurrentTasks) == 1 }, time.Second, 5*time.Millisecond)

	a.Stop()

	done := <-resultCh
	assert.Equal(t, core.TaskStatusCancelled, done.Status)
	_, ok := a.Memory.GetShort("session")
	assert.False(t, ok)
	assert.False(t, a.Accept(core.NewTask("t", core.TaskTypeCodeGeneration)))
}
