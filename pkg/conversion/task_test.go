package conversion_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/conversiontools/conversiontools-go/internal/testutils"
	"github.com/conversiontools/conversiontools-go/pkg/conversion"
)

func TestCreateTaskValidation(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	c := newTestClient(t, server, conversion.Options{})
	ctx := context.Background()

	tests := []struct {
		name string
		typ  string
	}{
		{"empty", ""},
		{"missing prefix", "xml_to_csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreateTask(ctx, tt.typ, nil, "")
			var ve *conversion.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if n := server.Requests("/tasks"); n != 0 {
		t.Errorf("expected zero network attempts for invalid types, got %d", n)
	}
}

func TestWaitSuccessScenario(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	resultID := server.AddFile("out.csv", []byte("a,b\n1,2\n"))
	server.ScriptNextTask(
		testutils.Step{Status: "PENDING", Progress: 0},
		testutils.Step{Status: "RUNNING", Progress: 50},
		testutils.Step{Status: "SUCCESS", Progress: 100, FileID: resultID},
	)

	c := newTestClient(t, server, conversion.Options{Logger: zaptest.NewLogger(t)})
	ctx := context.Background()

	task, err := c.CreateTask(ctx, "convert.xml_to_csv", map[string]any{"delimiter": "comma"}, "")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	var snapshots []conversion.TaskProgress
	err = task.Wait(ctx, conversion.WaitOptions{
		Observer: conversion.TaskObserverFunc(func(p conversion.TaskProgress) {
			snapshots = append(snapshots, p)
		}),
	})
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if task.Status() != conversion.StatusSuccess {
		t.Errorf("expected SUCCESS, got %s", task.Status())
	}
	handle, ok := task.ResultFile()
	if !ok || handle.ID != resultID {
		t.Errorf("expected result file %s, got %+v", resultID, handle)
	}

	if len(snapshots) != 3 {
		t.Fatalf("expected 3 progress snapshots, got %d", len(snapshots))
	}
	wantStatuses := []conversion.Status{conversion.StatusPending, conversion.StatusRunning, conversion.StatusSuccess}
	for i, want := range wantStatuses {
		if snapshots[i].Status != want {
			t.Errorf("snapshot %d: expected %s, got %s", i, want, snapshots[i].Status)
		}
	}
	if snapshots[1].Percent != 50 {
		t.Errorf("expected RUNNING snapshot at 50%%, got %d", snapshots[1].Percent)
	}
	if snapshots[2].Percent != 100 {
		t.Errorf("expected terminal snapshot at 100%%, got %d", snapshots[2].Percent)
	}
	for i := 1; i < len(snapshots); i++ {
		if snapshots[i].Percent < snapshots[i-1].Percent {
			t.Fatal("progress percentage went backwards")
		}
	}

	// Last snapshot matches the task's terminal status.
	if snapshots[len(snapshots)-1].Status != task.Status() {
		t.Error("last snapshot status does not match terminal task status")
	}
}

func TestWaitObserverInvokedOnImmediateTerminal(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	resultID := server.AddFile("out.csv", []byte("x"))
	server.ScriptNextTask(testutils.Step{Status: "SUCCESS", Progress: 100, FileID: resultID})

	c := newTestClient(t, server, conversion.Options{})
	ctx := context.Background()

	task, err := c.CreateTask(ctx, "convert.xml_to_csv", nil, "")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	calls := 0
	err = task.Wait(ctx, conversion.WaitOptions{
		Observer: conversion.TaskObserverFunc(func(p conversion.TaskProgress) { calls++ }),
	})
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 observer call for immediately terminal task, got %d", calls)
	}
}

func TestWaitConversionError(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	server.ScriptNextTask(
		testutils.Step{Status: "RUNNING", Progress: 10},
		testutils.Step{Status: "ERROR", Error: "unsupported encoding"},
	)

	c := newTestClient(t, server, conversion.Options{})
	ctx := context.Background()

	task, err := c.CreateTask(ctx, "convert.xml_to_csv", nil, "")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	err = task.Wait(ctx, conversion.WaitOptions{})
	var ce *conversion.ConversionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConversionError, got %v", err)
	}
	if ce.Message != "unsupported encoding" {
		t.Errorf("expected server error message, got %q", ce.Message)
	}
	if ce.TaskID != task.ID {
		t.Errorf("expected task id %s, got %s", task.ID, ce.TaskID)
	}
	if task.Status() != conversion.StatusError {
		t.Errorf("expected task in ERROR state, got %s", task.Status())
	}
}

func TestWaitTimeout(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	server.ScriptNextTask(testutils.Step{Status: "RUNNING", Progress: 42})

	c := newTestClient(t, server, conversion.Options{})
	ctx := context.Background()

	task, err := c.CreateTask(ctx, "convert.xml_to_csv", nil, "")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	interval := 20 * time.Millisecond
	timeout := 2 * interval
	start := time.Now()
	err = task.Wait(ctx, conversion.WaitOptions{
		PollingInterval:    interval,
		MaxPollingInterval: interval,
		Timeout:            timeout,
	})
	elapsed := time.Since(start)

	var te *conversion.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if elapsed < timeout {
		t.Errorf("wait returned before the deadline: %v < %v", elapsed, timeout)
	}
	if elapsed > timeout+time.Second {
		t.Errorf("wait returned far past the deadline: %v", elapsed)
	}

	// Task stays queryable in its last observed state.
	if task.Status() != conversion.StatusRunning {
		t.Errorf("expected task left RUNNING after timeout, got %s", task.Status())
	}
	if err := task.Refresh(ctx); err != nil {
		t.Errorf("Refresh after timeout: %v", err)
	}
}

func TestWaitCancellation(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	server.ScriptNextTask(testutils.Step{Status: "RUNNING", Progress: 10})

	c := newTestClient(t, server, conversion.Options{})

	task, err := c.CreateTask(context.Background(), "convert.xml_to_csv", nil, "")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err = task.Wait(ctx, conversion.WaitOptions{
		PollingInterval:    10 * time.Second,
		MaxPollingInterval: 10 * time.Second,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("wait did not abort promptly on cancellation")
	}
}

func TestStatusMonotonicity(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	resultID := server.AddFile("out.csv", []byte("x"))
	// A stale RUNNING response after SUCCESS must not roll the task back.
	server.ScriptNextTask(
		testutils.Step{Status: "SUCCESS", Progress: 100, FileID: resultID},
		testutils.Step{Status: "RUNNING", Progress: 90},
	)

	c := newTestClient(t, server, conversion.Options{})
	ctx := context.Background()

	task, err := c.CreateTask(ctx, "convert.xml_to_csv", nil, "")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if err := task.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if task.Status() != conversion.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", task.Status())
	}

	if err := task.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if task.Status() != conversion.StatusSuccess {
		t.Errorf("terminal status rolled back to %s", task.Status())
	}
	if _, ok := task.ResultFile(); !ok {
		t.Error("result file lost after stale refresh")
	}
}

func TestWatchMirrorsWait(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	resultID := server.AddFile("out.csv", []byte("x"))
	server.ScriptNextTask(
		testutils.Step{Status: "PENDING", Progress: 0},
		testutils.Step{Status: "RUNNING", Progress: 70},
		testutils.Step{Status: "SUCCESS", Progress: 100, FileID: resultID},
	)

	c := newTestClient(t, server, conversion.Options{})
	ctx := context.Background()

	task, err := c.CreateTask(ctx, "convert.xml_to_csv", nil, "")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	var updates []conversion.TaskUpdate
	for u := range task.Watch(ctx, conversion.WaitOptions{}) {
		updates = append(updates, u)
	}

	if len(updates) != 3 {
		t.Fatalf("expected 3 updates, got %d", len(updates))
	}
	for _, u := range updates {
		if u.Err != nil {
			t.Fatalf("unexpected watch error: %v", u.Err)
		}
	}
	if last := updates[len(updates)-1]; last.Status != conversion.StatusSuccess {
		t.Errorf("expected terminal SUCCESS update, got %s", last.Status)
	}
}

func TestWatchDeliversConversionError(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	server.ScriptNextTask(testutils.Step{Status: "ERROR", Error: "broken input"})

	c := newTestClient(t, server, conversion.Options{})
	ctx := context.Background()

	task, err := c.CreateTask(ctx, "convert.xml_to_csv", nil, "")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	var final conversion.TaskUpdate
	for u := range task.Watch(ctx, conversion.WaitOptions{}) {
		final = u
	}

	var ce *conversion.ConversionError
	if !errors.As(final.Err, &ce) {
		t.Fatalf("expected terminal ConversionError update, got %+v", final)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	c := newTestClient(t, server, conversion.Options{})

	_, err := c.GetTask(context.Background(), testutils.NewID())
	var ne *conversion.NotFoundError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if ne.Resource != "task" {
		t.Errorf("expected task resource, got %q", ne.Resource)
	}
}

func TestGetTaskUnauthorized(t *testing.T) {
	server := testutils.NewServer(t, "tok")

	c, err := conversion.NewClient(conversion.Options{
		APIToken:      "wrong-token",
		BaseURL:       server.URL,
		RetryAttempts: 1,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = c.GetTask(context.Background(), testutils.NewID())
	var ae *conversion.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if n := server.Requests("/tasks"); n != 1 {
		t.Errorf("expected exactly 1 attempt for auth failure, got %d", n)
	}
}

func TestListTasks(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	c := newTestClient(t, server, conversion.Options{})
	ctx := context.Background()

	server.ScriptNextTask(testutils.Step{Status: "RUNNING", Progress: 30})
	if _, err := c.CreateTask(ctx, "convert.xml_to_csv", nil, ""); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	server.ScriptNextTask(testutils.Step{Status: "ERROR", Error: "boom"})
	if _, err := c.CreateTask(ctx, "convert.xml_to_excel", nil, ""); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	all, err := c.ListTasks(ctx, "")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(all))
	}

	failed, err := c.ListTasks(ctx, conversion.StatusError)
	if err != nil {
		t.Fatalf("ListTasks filtered: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected 1 ERROR task, got %d", len(failed))
	}
	if failed[0].Status != conversion.StatusError {
		t.Errorf("expected ERROR status, got %s", failed[0].Status)
	}
}

func TestPollingRetriesTransientFailures(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	resultID := server.AddFile("out.csv", []byte("x"))
	server.ScriptNextTask(testutils.Step{Status: "SUCCESS", Progress: 100, FileID: resultID})

	c := newTestClient(t, server, conversion.Options{})
	ctx := context.Background()

	task, err := c.CreateTask(ctx, "convert.xml_to_csv", nil, "")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	server.FailNext("/tasks/"+task.ID, 2)
	if err := task.Wait(ctx, conversion.WaitOptions{}); err != nil {
		t.Fatalf("Wait with transient poll failures: %v", err)
	}
	if task.Status() != conversion.StatusSuccess {
		t.Errorf("expected SUCCESS, got %s", task.Status())
	}
}
