package protocol

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screa/vanity-search/internal/config"
	"github.com/screa/vanity-search/internal/crypto"
	"github.com/screa/vanity-search/internal/logger"
	"github.com/screa/vanity-search/pkg/miner"
	"github.com/screa/vanity-search/pkg/sink"
	"github.com/screa/vanity-search/pkg/types"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line   string
		want   Command
		wantOK bool
	}{
		{"stop", Command{Kind: CmdStop}, true},
		{"  stop \r", Command{Kind: CmdStop}, true},
		{`{"prefix":"Sol"}`, Command{Kind: CmdSearch, Prefix: "Sol"}, true},
		{`{"prefix":""}`, Command{Kind: CmdSearch, Prefix: ""}, true},
		{`{"prefix":"ab","extra":1}`, Command{Kind: CmdSearch, Prefix: "ab"}, true},
		{`{"other":"x"}`, Command{}, false},
		{`{"prefix":12}`, Command{}, false},
		{`not json`, Command{}, false},
		{`STOP`, Command{}, false},
		{``, Command{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := ParseLine(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// fakeRunner records jobs. With block set, each job waits for release or
// cancellation.
type fakeRunner struct {
	mu        sync.Mutex
	jobs      []*types.SearchJob
	cancelled []bool
	block     bool
	started   chan string
	release   chan struct{}
	err       error
}

func newFakeRunner(block bool) *fakeRunner {
	return &fakeRunner{
		block:   block,
		started: make(chan string, 16),
		release: make(chan struct{}, 16),
	}
}

func (f *fakeRunner) Run(ctx context.Context, job *types.SearchJob) (*types.Result, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	idx := len(f.jobs) - 1
	f.cancelled = append(f.cancelled, false)
	f.mu.Unlock()
	f.started <- job.Prefix

	if f.block {
		select {
		case <-f.release:
		case <-ctx.Done():
			f.mu.Lock()
			f.cancelled[idx] = true
			f.mu.Unlock()
		}
	}
	return &types.Result{JobID: job.ID}, f.err
}

func (f *fakeRunner) prefixes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, j := range f.jobs {
		out = append(out, j.Prefix)
	}
	return out
}

func waitStarted(t *testing.T, f *fakeRunner, want string) {
	t.Helper()
	select {
	case got := <-f.started:
		require.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatalf("job %q never started", want)
	}
}

func TestServeRunsJobsInOrderAndSkipsBadLines(t *testing.T) {
	input := strings.Join([]string{
		`{"prefix":"a"}`,
		`garbage`,
		`{"nope":true}`,
		``,
		`{"prefix":"b"}`,
	}, "\n") + "\n"

	rules := []types.Rule{{Unit: []byte("z"), MinRepeat: 5}}
	f := newFakeRunner(false)
	srv := NewServer(strings.NewReader(input), f, rules, logger.Discard())

	require.NoError(t, srv.Serve(context.Background()))
	assert.Equal(t, []string{"a", "b"}, f.prefixes())
	for _, j := range f.jobs {
		assert.Equal(t, rules, j.Rules)
		assert.NotEmpty(t, j.ID)
	}
}

func TestServeStopWithoutJob(t *testing.T) {
	f := newFakeRunner(false)
	srv := NewServer(strings.NewReader("stop\n{\"prefix\":\"a\"}\n"), f, nil, nil)

	require.NoError(t, srv.Serve(context.Background()))
	assert.Empty(t, f.prefixes())
}

func TestServeStopCancelsActiveJob(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	f := newFakeRunner(true)
	srv := NewServer(pr, f, nil, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(context.Background()) }()

	_, err := io.WriteString(pw, `{"prefix":"a"}`+"\n")
	require.NoError(t, err)
	waitStarted(t, f, "a")

	_, err = io.WriteString(pw, `{"prefix":"queued"}`+"\nstop\n")
	require.NoError(t, err)

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after stop")
	}
	assert.Equal(t, []string{"a"}, f.prefixes())
	assert.Equal(t, []bool{true}, f.cancelled)
}

func TestServeQueuesJobsAndFinishesAfterEOF(t *testing.T) {
	pr, pw := io.Pipe()
	f := newFakeRunner(true)
	srv := NewServer(pr, f, nil, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(context.Background()) }()

	_, err := io.WriteString(pw, `{"prefix":"a"}`+"\n")
	require.NoError(t, err)
	waitStarted(t, f, "a")

	_, err = io.WriteString(pw, `{"prefix":"b"}`+"\n")
	require.NoError(t, err)
	require.NoError(t, pw.Close())

	f.release <- struct{}{}
	waitStarted(t, f, "b")
	f.release <- struct{}{}

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after EOF")
	}
	assert.Equal(t, []string{"a", "b"}, f.prefixes())
	assert.Equal(t, []bool{false, false}, f.cancelled)
}

func TestServeContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	f := newFakeRunner(true)
	srv := NewServer(pr, f, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()

	_, err := io.WriteString(pw, `{"prefix":"a"}`+"\n")
	require.NoError(t, err)
	waitStarted(t, f, "a")
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Equal(t, []bool{true}, f.cancelled)
}

func TestServeReturnsJobError(t *testing.T) {
	f := newFakeRunner(false)
	f.err = crypto.ErrEntropy
	srv := NewServer(strings.NewReader(`{"prefix":"a"}`+"\n"+`{"prefix":"b"}`+"\n"), f, nil, nil)

	err := srv.Serve(context.Background())
	assert.True(t, errors.Is(err, crypto.ErrEntropy))
	assert.Equal(t, []string{"a"}, f.prefixes())
}

func TestServeWithMiner(t *testing.T) {
	var out bytes.Buffer
	cfg := config.NewConfig()
	cfg.Workers = 2
	out2 := sink.NewJSONSink(&out, logger.Discard(), nil)
	m := miner.NewMiner(cfg, out2, nil, logger.Discard(), nil,
		miner.WithIntervals(5*time.Millisecond, 10*time.Millisecond))

	srv := NewServer(strings.NewReader(`{"prefix":"B"}`+"\n"), m, nil, logger.Discard())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, srv.Serve(ctx))

	var found []map[string]any
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var msg map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &msg), sc.Text())
		switch msg["type"] {
		case "found":
			found = append(found, msg)
		case "progress":
			assert.Contains(t, msg, "tid")
			assert.Contains(t, msg, "attempts")
		default:
			t.Fatalf("unexpected message %s", sc.Text())
		}
	}
	require.Len(t, found, 1)

	addr := found[0]["address"].(string)
	assert.True(t, strings.HasPrefix(addr, "B"))
	kp, err := crypto.DecodePrivateKey(found[0]["private_key"].(string))
	require.NoError(t, err)
	assert.Equal(t, addr, kp.Address())
}
