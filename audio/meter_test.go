package audio

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource, sabit bir sample pattern'i üreten CaptureSource.
type fakeSource struct {
	mu      sync.Mutex
	samples []int16
	openErr error
	opens   int
	closes  int
}

func (s *fakeSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.opens++
	return nil
}

func (s *fakeSource) Read(buf []int16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := copy(buf, s.samples)
	return n, nil
}

func (s *fakeSource) setSamples(samples []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = samples
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

// sine, verilen bin frekansında tam ölçekli bir sinüs frame'i üretir.
func sine(bin int) []int16 {
	samples := make([]int16, fftSize)
	for i := range samples {
		samples[i] = int16(32767 * math.Sin(2*math.Pi*float64(bin)*float64(i)/float64(fftSize)))
	}
	return samples
}

func TestLevelFrom(t *testing.T) {
	t.Run("silence is zero", func(t *testing.T) {
		assert.Equal(t, 0, levelFrom(make([]int16, fftSize)))
	})

	t.Run("full scale tone is within range", func(t *testing.T) {
		level := levelFrom(sine(8))
		assert.Greater(t, level, 0)
		assert.LessOrEqual(t, level, 100)
	})

	t.Run("louder input gives higher level", func(t *testing.T) {
		loud := sine(8)
		quiet := make([]int16, fftSize)
		for i, v := range loud {
			quiet[i] = v / 64
		}
		assert.Greater(t, levelFrom(loud), levelFrom(quiet))
	})
}

func TestMeter_ProducesLevels(t *testing.T) {
	source := &fakeSource{samples: sine(8)}
	meter := NewMeter(source, nil)

	meter.Start()
	defer meter.Stop()

	assert.Eventually(t, func() bool {
		level := meter.Level()
		return level > 0 && level <= 100
	}, time.Second, 5*time.Millisecond)
}

func TestMeter_OpenFailureIsSoft(t *testing.T) {
	source := &fakeSource{openErr: errors.New("mic busy")}
	meter := NewMeter(source, nil)

	// Start hata yaymaz — seviye 0'da sabit kalır.
	meter.Start()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, meter.Level())

	meter.Stop()
	// Hiç açılmamış kaynak Stop'ta kapatılmaz.
	source.mu.Lock()
	defer source.mu.Unlock()
	assert.Equal(t, 0, source.closes)
}

func TestMeter_NilSourcePinsZero(t *testing.T) {
	meter := NewMeter(nil, nil)
	meter.Start()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, meter.Level())
	meter.Stop()
}

func TestMeter_StartAfterStopIsNoop(t *testing.T) {
	source := &fakeSource{samples: sine(8)}
	meter := NewMeter(source, nil)

	// Teardown ile yarışan geç bir Start kaynağı AÇMAMALI — açsaydı
	// stream'i kapatacak kimse kalmazdı.
	meter.Stop()
	meter.Start()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, meter.Level())

	source.mu.Lock()
	defer source.mu.Unlock()
	assert.Equal(t, 0, source.opens)
}

func TestMeter_StartAfterRunAndStopIsNoop(t *testing.T) {
	source := &fakeSource{samples: sine(8)}
	meter := NewMeter(source, nil)

	meter.Start()
	require.Eventually(t, func() bool { return meter.Level() > 0 }, time.Second, 5*time.Millisecond)
	meter.Stop()

	meter.Start()
	time.Sleep(30 * time.Millisecond)

	source.mu.Lock()
	defer source.mu.Unlock()
	// Kaynak yalnızca ilk Start'ta açıldı ve Stop'ta kapatıldı.
	assert.Equal(t, 1, source.opens)
	assert.Equal(t, 1, source.closes)
}

func TestMeter_StopReleasesAndZeroes(t *testing.T) {
	source := &fakeSource{samples: sine(8)}

	var mu sync.Mutex
	var levels []int
	meter := NewMeter(source, func(level int) {
		mu.Lock()
		levels = append(levels, level)
		mu.Unlock()
	})

	meter.Start()
	require.Eventually(t, func() bool { return meter.Level() > 0 }, time.Second, 5*time.Millisecond)

	// Kaynağı sessizliğe çevir ve 0'a indiğini gör — Stop ile uçuştaki
	// son frame yarışmasın.
	source.setSamples(make([]int16, fftSize))
	require.Eventually(t, func() bool { return meter.Level() == 0 }, time.Second, 5*time.Millisecond)

	meter.Stop()

	assert.Equal(t, 0, meter.Level())
	source.mu.Lock()
	closes := source.closes
	source.mu.Unlock()
	assert.Equal(t, 1, closes)

	// Son callback 0 seviyesini raporlamış olmalı.
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, levels)
	assert.Equal(t, 0, levels[len(levels)-1])
}
