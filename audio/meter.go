package audio

import (
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// fftSize: Her frame'de analiz edilen sample sayısı.
	// Spektrum fftSize/2 = 128 frequency bin üretir.
	fftSize = 256

	// frameInterval: ~60fps görsel kadans.
	frameInterval = 16 * time.Millisecond

	// minDecibels / maxDecibels: Bin genliklerinin [0,255] aralığına
	// map'lendiği dB penceresi. Konuşma tipik olarak bu pencerenin
	// ortasına düşer; tam ölçek 0 dB'dir.
	minDecibels = -100.0
	maxDecibels = -30.0
)

// LevelMeter, lokal mikrofonun anlık ses seviyesini [0,100] tamsayı
// olarak üretir.
//
// Fail-soft: capture kaynağı yoksa ya da açılamazsa seviye 0'da kalır
// ve session'a hata YAYILMAZ — seviye göstergesi kozmetiktir, arama
// onsuz da sürer.
type LevelMeter interface {
	Start()
	Stop()
	Level() int
}

type levelMeter struct {
	source  CaptureSource
	onLevel func(level int)

	level atomic.Int32

	stopOnce sync.Once
	stopCh   chan struct{}

	startMu sync.Mutex
	started bool
	stopped bool
	opened  bool
}

// NewMeter, constructor. source nil olabilir — meter 0'da sabitlenir.
// onLevel her frame'de değil, seviye DEĞİŞTİĞİNDE çağrılır.
func NewMeter(source CaptureSource, onLevel func(level int)) LevelMeter {
	return &levelMeter{
		source:  source,
		onLevel: onLevel,
		stopCh:  make(chan struct{}),
	}
}

func (m *levelMeter) Start() {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	// Durmuş bir meter yeniden başlatılamaz — teardown ile yarışan geç
	// bir Start capture stream'ini açıp sahipsiz bırakırdı.
	if m.started || m.stopped {
		return
	}
	m.started = true

	if m.source == nil {
		log.Printf("[audio] no capture source configured, level pinned at 0")
		return
	}
	if err := m.source.Open(); err != nil {
		// Fail-soft: mikrofon reddedildi/meşgul — arama seviyesiz sürer.
		log.Printf("[audio] capture open failed, level pinned at 0: %v", err)
		return
	}
	m.opened = true

	go m.loop()
}

// Stop, üç kaynağı birbirinden bağımsız bırakır: frame timer'ı, capture
// stream'ini ve seviye değerini. Birinin hatası diğerlerini engellemez.
func (m *levelMeter) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })

	m.startMu.Lock()
	m.stopped = true
	opened := m.opened
	m.opened = false
	m.startMu.Unlock()

	if opened {
		if err := m.source.Close(); err != nil {
			log.Printf("[audio] capture close failed: %v", err)
		}
	}

	m.setLevel(0)
}

func (m *levelMeter) Level() int {
	return int(m.level.Load())
}

func (m *levelMeter) loop() {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	buf := make([]int16, fftSize)

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			// Önceki frame'in kalıntısı yeni frame'e sızmasın.
			for i := range buf {
				buf[i] = 0
			}

			n, err := m.source.Read(buf)
			if err != nil || n == 0 {
				m.setLevel(0)
				continue
			}

			m.setLevel(levelFrom(buf))
		}
	}
}

func (m *levelMeter) setLevel(level int) {
	old := m.level.Swap(int32(level))
	if int(old) != level && m.onLevel != nil {
		m.onLevel(level)
	}
}

// levelFrom, bir sample frame'ini [0,100] seviyesine indirger:
// DFT ile frequency spektrumu çıkar, her bin'in genliğini dB penceresine
// göre [0,255]'e map'le, bin'lerin ortalamasını 100'lük skalaya çek.
func levelFrom(samples []int16) int {
	bins := magnitudes(samples)

	var sum float64
	for _, amp := range bins {
		sum += binValue(amp)
	}
	mean := sum / float64(len(bins))

	level := int(math.Round(mean / 255.0 * 100.0))
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	return level
}

// binValue, normalize genliği (0..1) dB penceresinden geçirip
// [0,255] değerine çevirir.
func binValue(amp float64) float64 {
	if amp <= 0 {
		return 0
	}
	db := 20.0 * math.Log10(amp)
	v := (db - minDecibels) / (maxDecibels - minDecibels) * 255.0
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// magnitudes, frame'in DFT magnitude spektrumunu döner (fftSize/2 bin,
// genlikler tam ölçek 1.0 olacak şekilde normalize).
//
// Frame 256 sample ve kadans 16ms — naive DFT'nin 256×128 çarpımı bu
// kadansta ölçüm gürültüsünün altında kalır, FFT gerektirmez.
func magnitudes(samples []int16) []float64 {
	n := len(samples)
	half := n / 2
	out := make([]float64, half)

	for k := 0; k < half; k++ {
		var re, im float64
		for t := 0; t < n; t++ {
			angle := -2.0 * math.Pi * float64(k) * float64(t) / float64(n)
			v := float64(samples[t])
			re += v * math.Cos(angle)
			im += v * math.Sin(angle)
		}
		// 2/N ölçeği: tam ölçek sinüs kendi bin'inde 32768 genlik verir.
		out[k] = math.Hypot(re, im) * 2.0 / float64(n) / 32768.0
	}
	return out
}
