package transfer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vertextoedge/safe-downloader/internal/adapter/filesystem"
	"github.com/vertextoedge/safe-downloader/internal/domain"
	"github.com/vertextoedge/safe-downloader/internal/domain/event"
	"github.com/vertextoedge/safe-downloader/internal/port"
	"go.uber.org/zap"
)

// chunk is one scripted network read
type chunk struct {
	data []byte
	err  error
}

// scriptedBody returns one chunk per Read, in order. A closed channel is EOF.
type scriptedBody struct {
	ctx     context.Context
	chunks  <-chan chunk
	pending []byte
	closed  atomic.Bool
}

func (b *scriptedBody) Read(p []byte) (int, error) {
	if len(b.pending) > 0 {
		n := copy(p, b.pending)
		b.pending = b.pending[n:]
		return n, nil
	}

	select {
	case c, ok := <-b.chunks:
		if !ok {
			return 0, io.EOF
		}
		if c.err != nil {
			return 0, c.err
		}
		n := copy(p, c.data)
		b.pending = c.data[n:]
		return n, nil
	case <-b.ctx.Done():
		return 0, b.ctx.Err()
	}
}

func (b *scriptedBody) Close() error {
	b.closed.Store(true)
	return nil
}

// fakeTransport serves a scripted response
type fakeTransport struct {
	total       int64
	contentType string
	chunks      chan chunk
	getErr      error
	blockGet    bool

	calls  atomic.Int32
	called chan struct{}
	body   *scriptedBody
}

func newFakeTransport(total int64, buffered int) *fakeTransport {
	return &fakeTransport{
		total:  total,
		chunks: make(chan chunk, buffered),
		called: make(chan struct{}, 1),
	}
}

func (f *fakeTransport) Get(ctx context.Context, rawURL string) (*port.Response, error) {
	f.calls.Add(1)
	select {
	case f.called <- struct{}{}:
	default:
	}

	if f.blockGet {
		<-ctx.Done()
		return nil, domain.NewTransportError("request", rawURL, 0, ctx.Err())
	}
	if f.getErr != nil {
		return nil, f.getErr
	}

	f.body = &scriptedBody{ctx: ctx, chunks: f.chunks}
	return &port.Response{
		StatusCode:    200,
		ContentLength: f.total,
		ContentType:   f.contentType,
		Body:          f.body,
	}, nil
}

// send delivers chunks of the given sizes
func (f *fakeTransport) send(sizes ...int) {
	for _, n := range sizes {
		f.chunks <- chunk{data: make([]byte, n)}
	}
}

// recordingListener captures callbacks
type recordingListener struct {
	mu        sync.Mutex
	progress  [][2]int64
	terminals []string
	failure   string

	progressed chan int64
	terminal   chan struct{}
	onTerminal func()
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		progressed: make(chan int64, 64),
		terminal:   make(chan struct{}, 4),
	}
}

func (l *recordingListener) OnProgress(received, total int64) {
	l.mu.Lock()
	l.progress = append(l.progress, [2]int64{received, total})
	l.mu.Unlock()

	select {
	case l.progressed <- received:
	default:
	}
}

func (l *recordingListener) OnCompleted() { l.finish("completed", "") }
func (l *recordingListener) OnCancelled() { l.finish("cancelled", "") }
func (l *recordingListener) OnFailed(description string) {
	l.finish("failed", description)
}

func (l *recordingListener) finish(name, description string) {
	l.mu.Lock()
	l.terminals = append(l.terminals, name)
	l.failure = description
	hook := l.onTerminal
	l.mu.Unlock()

	if hook != nil {
		hook()
	}

	select {
	case l.terminal <- struct{}{}:
	default:
	}
}

func (l *recordingListener) ratios() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]float64, len(l.progress))
	for i, p := range l.progress {
		out[i] = domain.Ratio(p[0], p[1])
	}
	return out
}

func (l *recordingListener) terminalEvents() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.terminals...)
}

func (l *recordingListener) failureDescription() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failure
}

// waitProgress blocks until the listener saw at least n received bytes
func (l *recordingListener) waitProgress(t *testing.T, n int64) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-l.progressed:
			if got >= n {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %d bytes", n)
		}
	}
}

type testEnv struct {
	dir        string
	fs         *filesystem.Manager
	transport  *fakeTransport
	listener   *recordingListener
	dispatcher *event.InMemoryDispatcher
	controller *Controller
	session    *Session
}

func newTestEnv(t *testing.T, transport *fakeTransport, cfg Config) *testEnv {
	t.Helper()

	dispatcher := event.NewInMemoryDispatcher(false)
	fs := filesystem.NewManagerWithConfig(filesystem.Config{BufferSize: 64}, zap.NewNop(), dispatcher)
	listener := newRecordingListener()

	return &testEnv{
		dir:        t.TempDir(),
		fs:         fs,
		transport:  transport,
		listener:   listener,
		dispatcher: dispatcher,
		controller: NewController(fs, transport, dispatcher, listener, zap.NewNop(), cfg),
	}
}

func (e *testEnv) request(t *testing.T, name string) domain.DownloadRequest {
	t.Helper()
	req, err := domain.NewDownloadRequest("https://example.com/files/"+name, e.dir)
	require.NoError(t, err)
	return req
}

// start starts a transfer and keeps its session for wait
func (e *testEnv) start(t *testing.T, req domain.DownloadRequest) string {
	t.Helper()
	id, err := e.controller.Start(req)
	require.NoError(t, err)

	e.controller.mu.Lock()
	e.session = e.controller.active
	if e.session == nil || e.session.id != id {
		e.session = e.controller.last
	}
	e.controller.mu.Unlock()
	require.NotNil(t, e.session)
	require.Equal(t, id, e.session.id)
	return id
}

// wait blocks until the last started session has fired its terminal callback
func (e *testEnv) wait(t *testing.T) {
	t.Helper()
	select {
	case <-e.session.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the transfer to finish")
	}
}

// stagingFiles lists staging files left in the destination directory
func (e *testEnv) stagingFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.dir)
	require.NoError(t, err)

	var out []string
	for _, entry := range entries {
		if e.fs.IsStagingFile(entry.Name()) {
			out = append(out, filepath.Join(e.dir, entry.Name()))
		}
	}
	return out
}
