package acquisition

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/voltlog/internal/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type result struct {
	samples []sample.Sample
	err     error
}

type AcquirerTestSuite struct {
	suite.Suite

	acq      *Acquirer
	payloads chan []byte
	ticks    chan time.Time
	done     chan result
	cancel   context.CancelCauseFunc
}

func (s *AcquirerTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	acq, err := New(Options{Threshold: 1000, Cap: 2000}, logger)
	s.Require().NoError(err)
	s.acq = acq

	s.payloads = make(chan []byte, 4096)
	s.ticks = make(chan time.Time)
	s.done = make(chan result, 1)

	ctx, cancel := context.WithCancelCause(context.Background())
	s.cancel = cancel
	go func() {
		samples, err := s.acq.Run(ctx, s.payloads, s.ticks)
		s.done <- result{samples, err}
	}()
}

func (s *AcquirerTestSuite) TearDownTest() {
	s.cancel(nil)
}

// pushSamples queues n samples as three-sample payloads plus a remainder payload,
// numbering them from start so their order is visible after decoding
func (s *AcquirerTestSuite) pushSamples(start, n int) {
	var payload []byte
	for i := start; i < start+n; i++ {
		payload = append(payload, []byte(fmt.Sprintf("%03x", i))...)
		if len(payload) == 9 {
			s.payloads <- payload
			payload = nil
		}
	}
	if len(payload) > 0 {
		s.payloads <- payload
	}
}

func (s *AcquirerTestSuite) tick() {
	s.ticks <- time.Now()
}

func (s *AcquirerTestSuite) wait() result {
	select {
	case r := <-s.done:
		return r
	case <-time.After(2 * time.Second):
		s.FailNow("acquisition did not finish")
		return result{}
	}
}

func (s *AcquirerTestSuite) assertNotFinished() {
	select {
	case r := <-s.done:
		s.FailNowf("acquisition finished early", "got %d samples, err=%v", len(r.samples), r.err)
	default:
	}
}

func (s *AcquirerTestSuite) TestDrainsOnTickAfterThreshold() {
	s.pushSamples(0, 1002)
	s.tick()

	r := s.wait()
	s.Require().NoError(r.err)
	s.Require().Len(r.samples, 1002)
	s.Equal(sample.Sample("000"), r.samples[0])
	s.Equal(sample.Sample("3e9"), r.samples[1001])
	s.Equal(Terminated, s.acq.State())
}

func (s *AcquirerTestSuite) TestBelowThresholdKeepsPolling() {
	s.pushSamples(0, 999)
	s.tick()
	s.assertNotFinished()
	s.Equal(Polling, s.acq.State())
	s.Equal(999, s.acq.Buffered())

	s.pushSamples(999, 1)
	s.tick()

	r := s.wait()
	s.Require().NoError(r.err)
	s.Len(r.samples, 1000)
	s.Equal(sample.Sample("3e7"), r.samples[999])
}

func (s *AcquirerTestSuite) TestCapIsStrict() {
	s.pushSamples(0, 2001)
	s.tick()

	r := s.wait()
	s.Require().NoError(r.err)
	s.Require().Len(r.samples, 2000)
	s.Equal(sample.Sample("7cf"), r.samples[1999])
	s.EqualValues(1, s.acq.Stats().Dropped)
}

func (s *AcquirerTestSuite) TestMalformedPayloadsAreDiscarded() {
	s.payloads <- []byte("3e8!")
	s.payloads <- []byte{}
	s.pushSamples(0, 1000)
	s.tick()

	r := s.wait()
	s.Require().NoError(r.err)
	s.Len(r.samples, 1000)
	s.EqualValues(1, s.acq.Stats().Malformed)
}

func (s *AcquirerTestSuite) TestLateNotificationsAreIgnored() {
	s.pushSamples(0, 1000)
	s.tick()
	r := s.wait()
	s.Require().NoError(r.err)

	s.Equal(0, s.acq.Ingest([]byte("3e8")))
	s.Equal(0, s.acq.Buffered())
	s.EqualValues(1, s.acq.Stats().Ignored)
	s.Len(r.samples, 1000)
}

func (s *AcquirerTestSuite) TestCancellationHandsOffNothing() {
	s.pushSamples(0, 1500)
	cause := errors.New("interrupted")
	s.cancel(cause)

	r := s.wait()
	s.ErrorIs(r.err, cause)
	s.Nil(r.samples)
	s.Equal(Terminated, s.acq.State())
}

func TestAcquirerTestSuite(t *testing.T) {
	suite.Run(t, new(AcquirerTestSuite))
}

func TestNewAppliesDefaults(t *testing.T) {
	acq, err := New(Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, Options{Threshold: DefaultThreshold, Cap: DefaultCap, SampleSize: sample.DefaultSize}, acq.Options())
	assert.Equal(t, Polling, acq.State())
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	_, err := New(Options{Threshold: 3000, Cap: 2000}, nil)
	assert.ErrorContains(t, err, "exceeds sample cap")

	_, err = New(Options{SampleSize: -1}, nil)
	assert.ErrorContains(t, err, "sample size")

	_, err = New(Options{Threshold: -5}, nil)
	assert.ErrorContains(t, err, "must be positive")
}

func TestOnTickReportsProgress(t *testing.T) {
	acq, err := New(Options{Threshold: 2, Cap: 4}, nil)
	require.NoError(t, err)

	seen := make(chan int)
	acq.OnTick(func(buffered, threshold int) {
		assert.Equal(t, 2, threshold)
		seen <- buffered
	})

	payloads := make(chan []byte, 4)
	ticks := make(chan time.Time)
	done := make(chan []sample.Sample, 1)
	go func() {
		samples, err := acq.Run(context.Background(), payloads, ticks)
		assert.NoError(t, err)
		done <- samples
	}()

	payloads <- []byte("001")
	ticks <- time.Now()
	assert.Equal(t, 1, <-seen)
	ticks <- time.Now()
	assert.Equal(t, 1, <-seen)

	payloads <- []byte("002")
	ticks <- time.Now()

	select {
	case samples := <-done:
		assert.Equal(t, []sample.Sample{sample.Sample("001"), sample.Sample("002")}, samples)
	case <-time.After(2 * time.Second):
		t.Fatal("acquisition did not finish")
	}
}

func TestDecode(t *testing.T) {
	values, err := Decode([]sample.Sample{sample.Sample("3e8"), sample.Sample("064")})
	require.NoError(t, err)
	assert.Equal(t, []int64{1000, 100}, values)

	_, err = Decode([]sample.Sample{sample.Sample("3e8"), sample.Sample("zz!")})
	var decErr *sample.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, 1, decErr.Index)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "polling", Polling.String())
	assert.Equal(t, "draining", Draining.String())
	assert.Equal(t, "terminated", Terminated.String())
	assert.Equal(t, "state(7)", State(7).String())
}
