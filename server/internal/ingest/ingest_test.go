package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/liveplot/pkg/types"
	"github.com/obsidianstack/liveplot/server/internal/metrics"
)

// --- helpers ----------------------------------------------------------------

// drain collects every payload until the queue closes.
func drain(t *testing.T, q <-chan []byte) []types.Sample {
	t.Helper()
	var out []types.Sample
	timeout := time.After(2 * time.Second)
	for {
		select {
		case p, ok := <-q:
			if !ok {
				return out
			}
			s, err := types.Decode(p)
			require.NoError(t, err)
			out = append(out, s)
		case <-timeout:
			t.Fatal("queue not closed")
		}
	}
}

// tickingSource advances a fake clock by step before yielding each record.
type tickingSource struct {
	clock   clockwork.FakeClock
	step    time.Duration
	records [][]string
}

func (s *tickingSource) Next() ([]string, error) {
	if len(s.records) == 0 {
		return nil, io.EOF
	}
	s.clock.Advance(s.step)
	r := s.records[0]
	s.records = s.records[1:]
	return r, nil
}

type failingSource struct{ err error }

func (s failingSource) Next() ([]string, error) { return nil, s.err }

type endlessSource struct{}

func (endlessSource) Next() ([]string, error) { return []string{"1"}, nil }

func sample(stamp float64) types.Sample {
	return types.Sample{Stamp: stamp, Values: []float64{stamp}}
}

// --- tests ------------------------------------------------------------------

func TestRun_SkipsMalformedRecords(t *testing.T) {
	m := metrics.NewUnregistered()
	in := New(Options{Capacity: 5, Policy: Block, Metrics: m})

	src := NewCSVSource(strings.NewReader("1,2,3\na,b\n4,5,6\n"))
	require.NoError(t, in.Run(context.Background(), src))

	got := drain(t, in.Queue())
	require.Len(t, got, 2)
	assert.Equal(t, []float64{1, 2, 3}, got[0].Values)
	assert.Equal(t, []float64{4, 5, 6}, got[1].Values)

	assert.Equal(t, Stats{Samples: 2, Malformed: 1}, in.Stats())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsMalformed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SamplesIngested))

	select {
	case <-in.Done():
	default:
		t.Fatal("Done not closed after source ended")
	}
}

func TestRun_TrimsAndAcceptsVariableWidth(t *testing.T) {
	in := New(Options{Capacity: 5, Policy: Block})

	src := NewCSVSource(strings.NewReader("0.64,  0.76\n\n  1e-3 , 2 , 3 \n"))
	require.NoError(t, in.Run(context.Background(), src))

	got := drain(t, in.Queue())
	require.Len(t, got, 2)
	assert.Equal(t, []float64{0.64, 0.76}, got[0].Values)
	assert.Equal(t, []float64{0.001, 2, 3}, got[1].Values)
}

func TestRun_UnbalancedQuoteSpoilsOnlyItsLine(t *testing.T) {
	in := New(Options{Capacity: 5, Policy: Block})

	src := NewCSVSource(strings.NewReader("1,2\n3,\"4\n5,6\n7,8\n"))
	require.NoError(t, in.Run(context.Background(), src))

	got := drain(t, in.Queue())
	require.Len(t, got, 3)
	assert.Equal(t, []float64{1, 2}, got[0].Values)
	assert.Equal(t, []float64{5, 6}, got[1].Values)
	assert.Equal(t, []float64{7, 8}, got[2].Values)
	assert.Equal(t, uint64(1), in.Stats().Malformed)
}

func TestCSVSource_OneRecordPerLine(t *testing.T) {
	src := NewCSVSource(strings.NewReader("\"a\n\r\n 1 ,2\r\n\"x,y\"\n3"))

	_, err := src.Next()
	require.ErrorIs(t, err, types.ErrMalformed)
	assert.Contains(t, err.Error(), "line 1")

	rec, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"1 ", "2"}, rec)

	rec, err = src.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"x,y"}, rec)

	rec, err = src.Next()
	require.NoError(t, err, "last line without newline")
	assert.Equal(t, []string{"3"}, rec)

	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRun_StampsElapsedTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	in := New(Options{Capacity: 5, Policy: Block, Clock: clock})

	src := &tickingSource{
		clock:   clock,
		step:    250 * time.Millisecond,
		records: [][]string{{"1"}, {"2"}, {"3"}},
	}
	require.NoError(t, in.Run(context.Background(), src))

	got := drain(t, in.Queue())
	require.Len(t, got, 3)
	assert.Equal(t, 0.25, got[0].Stamp)
	assert.Equal(t, 0.5, got[1].Stamp)
	assert.Equal(t, 0.75, got[2].Stamp)
}

func TestRun_ReadErrorStops(t *testing.T) {
	in := New(Options{Capacity: 5})
	boom := errors.New("disk on fire")

	err := in.Run(context.Background(), failingSource{err: boom})
	require.ErrorIs(t, err, boom)

	_, ok := <-in.Queue()
	assert.False(t, ok, "queue should be closed")
}

func TestRun_CancelWhileBlocked(t *testing.T) {
	in := New(Options{Capacity: 1, Policy: Block})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- in.Run(ctx, endlessSource{}) }()

	// Queue of one fills immediately; Run then blocks on the second record.
	require.Eventually(t, func() bool { return len(in.Queue()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPublish_BlockPolicy(t *testing.T) {
	in := New(Options{Capacity: 5, Policy: Block})

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		require.NoError(t, in.Publish(ctx, sample(float64(i))), "record %d blocked", i)
		cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := in.Publish(ctx, sample(5))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, in.Queue(), 5)
	assert.Equal(t, uint64(5), in.Stats().Samples)
}

func TestPublish_DropOldestPolicy(t *testing.T) {
	m := metrics.NewUnregistered()
	in := New(Options{Capacity: 5, Policy: DropOldest, Metrics: m})

	for i := 0; i < 6; i++ {
		require.NoError(t, in.Publish(context.Background(), sample(float64(i))))
	}
	in.Close()

	got := drain(t, in.Queue())
	require.Len(t, got, 5)
	assert.Equal(t, 1.0, got[0].Stamp, "oldest sample should have been evicted")
	assert.Equal(t, 5.0, got[4].Stamp)
	assert.Equal(t, uint64(1), in.Stats().Dropped)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SamplesDropped))
}

func TestPublish_BlockThenDropPolicy(t *testing.T) {
	clock := clockwork.NewFakeClock()
	in := New(Options{Capacity: 5, Policy: BlockThenDrop, BlockTimeout: 100 * time.Millisecond, Clock: clock})

	for i := 0; i < 5; i++ {
		require.NoError(t, in.Publish(context.Background(), sample(float64(i))))
	}

	done := make(chan error, 1)
	go func() { done <- in.Publish(context.Background(), sample(5)) }()

	// The sixth publish waits on the block timer.
	clock.BlockUntil(1)
	select {
	case <-done:
		t.Fatal("publish returned before the block timeout")
	default:
	}

	clock.Advance(100 * time.Millisecond)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("publish still blocked after the timeout")
	}

	in.Close()
	got := drain(t, in.Queue())
	require.Len(t, got, 5)
	assert.Equal(t, 1.0, got[0].Stamp)
	assert.Equal(t, uint64(1), in.Stats().Dropped)
}

func TestPublish_AfterClose(t *testing.T) {
	in := New(Options{Capacity: 1})
	in.Close()
	in.Close()
	assert.ErrorIs(t, in.Publish(context.Background(), sample(0)), ErrClosed)
}

func TestClose_ReleasesBlockedPublisher(t *testing.T) {
	in := New(Options{Capacity: 1, Policy: Block})
	require.NoError(t, in.Publish(context.Background(), sample(0)))

	errCh := make(chan error, 1)
	go func() { errCh <- in.Publish(context.Background(), sample(1)) }()

	select {
	case <-errCh:
		t.Fatal("publish into a full queue returned early")
	case <-time.After(20 * time.Millisecond):
	}

	in.Close()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not release the blocked publisher")
	}

	got := drain(t, in.Queue())
	require.Len(t, got, 1)
}

func TestClose_ConcurrentWithPublish(t *testing.T) {
	for _, policy := range []Policy{Block, DropOldest, BlockThenDrop} {
		in := New(Options{Capacity: 2, Policy: policy, BlockTimeout: time.Millisecond})

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					err := in.Publish(context.Background(), sample(float64(i*50+j)))
					if err != nil {
						assert.ErrorIs(t, err, ErrClosed, policy.String())
						return
					}
				}
			}(i)
		}

		time.Sleep(time.Millisecond)
		in.Close()
		wg.Wait()

		assert.LessOrEqual(t, len(drain(t, in.Queue())), 2, policy.String())
	}
}

func TestPublish_NonFiniteIsMalformed(t *testing.T) {
	in := New(Options{Capacity: 1})
	nan, err := types.ParseRecord([]string{"+Inf"}, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, in.Publish(context.Background(), nan), types.ErrMalformed)
	assert.Empty(t, in.Queue())
}

func TestParsePolicy(t *testing.T) {
	cases := map[string]Policy{
		"block":           Block,
		"drop_oldest":     DropOldest,
		"block_then_drop": BlockThenDrop,
		"":                BlockThenDrop,
	}
	for name, want := range cases {
		got, err := ParsePolicy(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParsePolicy("spill")
	assert.Error(t, err)
}
