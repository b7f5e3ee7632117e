// Package audio, lokal mikrofonun seviye ölçümünü sağlar.
//
// Capture kaynağı s16le (16-bit signed little-endian) PCM üreten bir
// dosya ya da FIFO'dur — arecord/parec gibi bir araç FIFO'ya yazar, biz
// okuruz. Kaynak exclusive'dir: aynı anda tek bir Open geçerlidir.
package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/primetalker/callkit/pkg"
)

// CaptureSource, ham PCM sample stream'inin soyutlaması.
type CaptureSource interface {
	// Open, capture stream'ini açar. Kaynak exclusive'dir — açıkken
	// ikinci Open hata döner.
	Open() error

	// Read, buf'a en fazla len(buf) sample okur ve okunan sayıyı döner.
	Read(buf []int16) (int, error)

	// Close, stream'i serbest bırakır. Idempotent.
	Close() error
}

// PCMFileSource, bir dosya/FIFO yolundan s16le PCM okuyan CaptureSource.
type PCMFileSource struct {
	path string

	mu  sync.Mutex
	f   *os.File
	raw []byte
}

// NewPCMFileSource, constructor. Dosya Open'da açılır.
func NewPCMFileSource(path string) *PCMFileSource {
	return &PCMFileSource{path: path}
}

func (s *PCMFileSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f != nil {
		return fmt.Errorf("%w: capture source already open", pkg.ErrInvalidState)
	}

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("%w: cannot open capture source %s: %v", pkg.ErrUnavailable, s.path, err)
	}
	s.f = f
	return nil
}

func (s *PCMFileSource) Read(buf []int16) (int, error) {
	s.mu.Lock()
	f := s.f
	if cap(s.raw) < len(buf)*2 {
		s.raw = make([]byte, len(buf)*2)
	}
	raw := s.raw[:len(buf)*2]
	s.mu.Unlock()

	if f == nil {
		return 0, fmt.Errorf("%w: capture source not open", pkg.ErrInvalidState)
	}

	n, err := f.Read(raw)
	samples := n / 2
	for i := 0; i < samples; i++ {
		buf[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	if samples > 0 {
		// Kısmi okuma normaldir (FIFO) — eldeki sample'larla devam.
		return samples, nil
	}
	return 0, err
}

func (s *PCMFileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
