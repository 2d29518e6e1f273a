package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/modelstore"
	"github.com/rushteam/bookrec/recommender"
	"github.com/rushteam/bookrec/store"
	"github.com/rushteam/bookrec/trainer"
)

type fakeServer struct {
	mu       sync.Mutex
	stop     chan struct{}
	listenFn func() error
	shutdown bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{stop: make(chan struct{})}
}

func (f *fakeServer) ListenAndServe() error {
	if f.listenFn != nil {
		return f.listenFn()
	}
	<-f.stop
	return nil
}

func (f *fakeServer) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdown = true
	close(f.stop)
	return nil
}

func TestHTTPService_GracefulShutdown(t *testing.T) {
	srv := newFakeServer()
	svc := NewHTTPService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if !srv.shutdown {
		t.Error("Shutdown not called")
	}
}

func TestHTTPService_ListenError(t *testing.T) {
	srv := newFakeServer()
	srv.listenFn = func() error { return errors.New("address in use") }
	svc := NewHTTPService(srv, 0)

	if err := svc.Serve(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
	if svc.String() != "http-server" {
		t.Errorf("String() = %s", svc.String())
	}
}

type fakeRunner struct {
	calls atomic.Int32
	ran   chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context) (*trainer.Result, error) {
	f.calls.Add(1)
	select {
	case f.ran <- struct{}{}:
	default:
	}
	return &trainer.Result{Books: 1, ContentTrained: true}, nil
}

func TestSchedulerService_RunsOnStartup(t *testing.T) {
	runner := &fakeRunner{ran: make(chan struct{}, 1)}
	svc, err := NewSchedulerService(runner, "0 2 * * *", true, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSchedulerService: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	select {
	case <-runner.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("startup training did not run")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if n := runner.calls.Load(); n != 1 {
		t.Errorf("runs = %d, want 1", n)
	}
}

// slowRunner 在 release 关闭前不返回，且不理会 ctx
type slowRunner struct {
	started  chan struct{}
	release  chan struct{}
	finished atomic.Bool
}

func (r *slowRunner) Run(ctx context.Context) (*trainer.Result, error) {
	close(r.started)
	<-r.release
	r.finished.Store(true)
	return &trainer.Result{Skipped: true}, nil
}

func TestSchedulerService_ServeWaitsForStartupRun(t *testing.T) {
	runner := &slowRunner{started: make(chan struct{}), release: make(chan struct{})}
	svc, err := NewSchedulerService(runner, "", true, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("startup training did not run")
	}
	cancel()

	select {
	case <-done:
		t.Fatal("Serve returned while startup training was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(runner.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if !runner.finished.Load() {
		t.Error("startup training not finished when Serve returned")
	}
}

func TestSchedulerService_InvalidSchedule(t *testing.T) {
	if _, err := NewSchedulerService(&fakeRunner{}, "every day", false, zerolog.Nop()); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := NewSchedulerService(&fakeRunner{}, "", false, zerolog.Nop()); err != nil {
		t.Fatalf("empty schedule: %v", err)
	}
}

func TestReloadService_LoadsPublishedModels(t *testing.T) {
	shared := store.NewMemoryStore()
	defer shared.Close()

	// 训练进程
	writer := recommender.New(recommender.Config{}, recommender.WithModelStore(modelstore.New(shared)))
	// 服务进程
	reader := recommender.New(recommender.Config{}, recommender.WithModelStore(modelstore.New(shared)))

	svc := NewReloadService(reader, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	// 等待 Watch 注册
	time.Sleep(50 * time.Millisecond)

	books := []core.Book{
		{ID: "b1", Title: "Dune", Author: "Herbert"},
		{ID: "b2", Title: "Dune Messiah", Author: "Herbert"},
	}
	if err := writer.TrainContent(ctx, books); err != nil {
		t.Fatalf("TrainContent: %v", err)
	}
	if _, err := writer.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !reader.Status().ContentReady {
		if time.Now().After(deadline) {
			t.Fatal("reader did not pick up published model")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := reader.Status().Items; got != 2 {
		t.Errorf("items = %d, want 2", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestReloadService_WithoutModelStore(t *testing.T) {
	svc := NewReloadService(recommender.New(recommender.Config{}), zerolog.Nop())
	if err := svc.Serve(context.Background()); err == nil {
		t.Fatal("expected do-not-restart error")
	}
}

func TestTree_StartStop(t *testing.T) {
	tree := NewTree(zerolog.Nop(), TreeConfig{ShutdownTimeout: time.Second})
	tree.AddAPIService(NewHTTPService(newFakeServer(), time.Second))
	runner := &fakeRunner{ran: make(chan struct{}, 1)}
	sched, err := NewSchedulerService(runner, "", true, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	tree.AddModelService(sched)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.Root().ServeBackground(ctx)
	select {
	case <-runner.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not start")
	}
	cancel()
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop")
	}
}
