// Package config, uygulamanın tüm konfigürasyonunu merkezi olarak yönetir.
// Environment variable'lardan okur, .env dosyasını da destekler.
//
// Config struct'ı tüm ayarları tek bir yerde toplar, böylece her yerde
// ayrı ayrı os.Getenv() çağırmak yerine tek bir Config nesnesi taşırız.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config, uygulamanın tüm konfigürasyon değerlerini taşır.
// Her alt bölüm ayrı bir struct — her biri tek bir concern'ü temsil eder.
type Config struct {
	Backend   BackendConfig
	Signaling SignalingConfig
	Poll      PollConfig
	Audio     AudioConfig
	UI        UIConfig
	History   HistoryConfig
}

// BackendConfig, arama backend'inin REST ayarları.
type BackendConfig struct {
	BaseURL string        // Örn: https://call-backend.example.com
	Timeout time.Duration // Tek bir HTTP isteği için üst sınır
}

// SignalingConfig, ses transport cihazının signaling kanalı ayarları.
type SignalingConfig struct {
	URL string // WebSocket gateway (ör: wss://voice.example.com/signal)
}

// PollConfig, presence ve transcript poll aralıkları.
//
// Referans kadanslar: presence 2s, transcript 1.5s.
// Poll'lar bağımsız stream'lerdir — aralarında sıralama garantisi yoktur.
type PollConfig struct {
	PresenceInterval   time.Duration
	TranscriptInterval time.Duration
}

// AudioConfig, lokal mikrofon seviyesi ölçümü ayarları.
//
// CapturePath: s16le PCM okunan dosya/FIFO yolu. Boş bırakılırsa capture
// devre dışıdır — meter fail-soft davranır, seviye 0'da sabitlenir.
type AudioConfig struct {
	CapturePath string
	SampleRate  int
}

// UIConfig, lokal observation API ayarları (out-of-scope UI katmanı tüketir).
type UIConfig struct {
	Addr           string
	AllowedOrigins []string
}

// HistoryConfig, arama arşivi (SQLite) ayarları.
type HistoryConfig struct {
	Path string // SQLite dosya yolu; boş ise arşivleme devre dışı
}

// Load, environment variable'lardan Config oluşturur.
// .env dosyası varsa önce onu yükler (development kolaylığı için).
func Load() (*Config, error) {
	// .env dosyasını yükle — dosya yoksa hata vermez, sessizce devam eder.
	_ = godotenv.Load()

	timeoutMs, err := strconv.Atoi(getEnv("BACKEND_TIMEOUT_MS", "10000"))
	if err != nil {
		return nil, fmt.Errorf("invalid BACKEND_TIMEOUT_MS: %w", err)
	}

	presenceMs, err := strconv.Atoi(getEnv("PRESENCE_POLL_MS", "2000"))
	if err != nil {
		return nil, fmt.Errorf("invalid PRESENCE_POLL_MS: %w", err)
	}

	transcriptMs, err := strconv.Atoi(getEnv("TRANSCRIPT_POLL_MS", "1500"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRANSCRIPT_POLL_MS: %w", err)
	}

	sampleRate, err := strconv.Atoi(getEnv("AUDIO_SAMPLE_RATE", "16000"))
	if err != nil {
		return nil, fmt.Errorf("invalid AUDIO_SAMPLE_RATE: %w", err)
	}

	baseURL := getEnv("BACKEND_BASE_URL", "")
	if baseURL == "" {
		return nil, fmt.Errorf("BACKEND_BASE_URL environment variable is required")
	}

	cfg := &Config{
		Backend: BackendConfig{
			BaseURL: strings.TrimRight(baseURL, "/"),
			Timeout: time.Duration(timeoutMs) * time.Millisecond,
		},
		Signaling: SignalingConfig{
			URL: getEnv("SIGNALING_URL", "ws://localhost:9080/signal"),
		},
		Poll: PollConfig{
			PresenceInterval:   time.Duration(presenceMs) * time.Millisecond,
			TranscriptInterval: time.Duration(transcriptMs) * time.Millisecond,
		},
		Audio: AudioConfig{
			CapturePath: getEnv("AUDIO_CAPTURE_PATH", ""),
			SampleRate:  sampleRate,
		},
		UI: UIConfig{
			Addr: getEnv("UI_ADDR", "127.0.0.1:9317"),
			AllowedOrigins: splitList(getEnv("UI_ALLOWED_ORIGINS",
				"http://localhost:3000,http://localhost:5173")),
		},
		History: HistoryConfig{
			Path: getEnv("HISTORY_DB_PATH", "./data/callkit.db"),
		},
	}

	return cfg, nil
}

// getEnv, environment variable'ı okur, yoksa fallback değeri döner.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// splitList, virgülle ayrılmış bir env değerini listeye çevirir.
func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
