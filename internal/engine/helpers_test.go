package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/snretrieve/internal/event"
	"github.com/bamsammich/snretrieve/internal/stornext"
)

// mockManager is a testify mock of stornext.Manager.
type mockManager struct {
	mock.Mock
}

func (m *mockManager) Classify(ctx context.Context, path string) stornext.Residency {
	args := m.Called(ctx, path)
	return args.Get(0).(stornext.Residency) //nolint:forcetypeassert // test mock
}

func (m *mockManager) Retrieve(ctx context.Context, req stornext.RetrieveRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

// writeRetrieved simulates fsretrieve by writing content to req.Dst.
func writeRetrieved(args mock.Arguments) {
	req := args.Get(1).(stornext.RetrieveRequest) //nolint:forcetypeassert // test mock
	_ = os.WriteFile(req.Dst, []byte("retrieved:"+filepath.Base(req.Src)), 0o600)
}

// fakeManager classifies by base name and simulates retrieves while
// tracking how many run at once.
type fakeManager struct {
	mu          sync.Mutex
	residency   map[string]stornext.Residency
	retrieveErr map[string]error
	retrieved   []string
	delay       time.Duration

	active atomic.Int64
	peak   atomic.Int64
}

func newFakeManager() *fakeManager {
	return &fakeManager{
		residency:   make(map[string]stornext.Residency),
		retrieveErr: make(map[string]error),
	}
}

func (f *fakeManager) Classify(_ context.Context, path string) stornext.Residency {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.residency[filepath.Base(path)]; ok {
		return r
	}
	return stornext.OnDisk
}

func (f *fakeManager) Retrieve(ctx context.Context, req stornext.RetrieveRequest) error {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	f.retrieved = append(f.retrieved, req.Src)
	err := f.retrieveErr[filepath.Base(req.Src)]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(req.Dst, []byte("retrieved:"+filepath.Base(req.Src)), 0o600)
}

func (f *fakeManager) retrievedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.retrieved)
}

// writeFile creates root/rel with data, making parent directories.
func writeFile(t *testing.T, root, rel string, data []byte) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o640))
	return path
}

// taskFor builds a FileTask for an existing source file.
func taskFor(t *testing.T, srcRoot, dstRoot, rel string) FileTask {
	t.Helper()
	src := filepath.Join(srcRoot, rel)
	info, err := os.Lstat(src)
	require.NoError(t, err)
	dst, err := Relocate(srcRoot, dstRoot, src)
	require.NoError(t, err)
	return NewScanner(ScannerConfig{SrcRoot: srcRoot, DstRoot: dstRoot}).fileTask(src, dst, info)
}

// drainEvents creates a buffered event channel, spawns a goroutine to
// collect it, and returns the channel plus a func that closes it and
// returns everything received.
func drainEvents(t *testing.T) (chan<- event.Event, func() []event.Event) {
	t.Helper()
	ch := make(chan event.Event, 1024)
	var got []event.Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			got = append(got, ev)
		}
	}()
	return ch, func() []event.Event {
		close(ch)
		<-done
		return got
	}
}
