package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIncAndAdd(t *testing.T) {
	s := New()
	s.Inc("requests")
	s.Add("requests", 4)

	snap := s.Export()
	assert.Equal(t, int64(5), snap.Counters["requests"])
}

func TestGauge_SetAndIncrement(t *testing.T) {
	s := New()
	s.SetGauge("connections", 10)
	s.IncGauge("connections", -3)

	snap := s.Export()
	assert.Equal(t, int64(7), snap.Gauges["connections"])
}

func TestObserve_ComputesAverage(t *testing.T) {
	s := New()
	s.Observe("latency", 10*time.Millisecond)
	s.Observe("latency", 20*time.Millisecond)

	snap := s.Export()
	assert.Equal(t, 15*time.Millisecond, snap.Averages["latency"])
}

func TestObserve_CapsRetainedSamples(t *testing.T) {
	s := New()
	for i := 0; i < 1500; i++ {
		s.Observe("latency", time.Millisecond)
	}

	assert.LessOrEqual(t, len(s.durations["latency"]), 1000)
}

func TestTrack_RecordsElapsedDuration(t *testing.T) {
	s := New()
	stop := s.Track("op")
	time.Sleep(5 * time.Millisecond)
	stop()

	snap := s.Export()
	assert.Greater(t, snap.Averages["op"], time.Duration(0))
}

func TestSink_ConcurrentAccessIsSafe(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Inc("concurrent")
		}()
	}
	wg.Wait()

	snap := s.Export()
	assert.Equal(t, int64(50), snap.Counters["concurrent"])
}
