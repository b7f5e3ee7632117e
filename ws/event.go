// Package ws, lokal UI'ın WebSocket bağlantı yönetimi ve gerçek zamanlı
// event dağıtımını sağlar.
//
// Mimari:
// - Hub: Tüm bağlantıları yöneten merkezi yapı (Observer pattern)
// - Client: Her WebSocket bağlantısını temsil eder
// - Event: Client-server arası iletilen mesaj formatı
//
// Event akışı:
// 1. SessionController snapshot'ı değişir → OnChange callback'i
// 2. main.go Hub'ın BroadcastToAll metodunu çağırır
// 3. Hub, event'i tüm bağlı UI client'larına iletir
// 4. Her client'ın WritePump'ı event'i WebSocket'e yazar
//
// Ters yön (UI → session) callback'lerle main.go üzerinden controller'a
// gider — ws paketi call paketine bağımlı değildir.
package ws

// Event, WebSocket üzerinden iletilen bir mesajı temsil eder.
//
// Op: Event türü — "snapshot", "heartbeat" vb.
// Data: Event'e özgü payload.
// Seq: Her outbound event'e verilen artan sayı — UI eksik event
// tespit etmek için takip eder.
type Event struct {
	Op   string `json:"op"`
	Data any    `json:"d,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

// Client → Server operasyonları
const (
	OpHeartbeat         = "heartbeat"          // UI her 30sn'de gönderir — "hâlâ bağlıyım" sinyali
	OpEndCall           = "end_call"           // Kullanıcı aramayı sonlandırdı
	OpToggleTranslation = "toggle_translation" // Çeviri overlay'i aç/kapat
	OpToggleMute        = "toggle_mute"        // Mikrofonu sustur/aç
)

// Server → Client operasyonları
const (
	OpHeartbeatAck     = "heartbeat_ack"     // Heartbeat'e yanıt
	OpSnapshot         = "snapshot"          // Session görünümü değişti — tam snapshot
	OpTranscriptAppend = "transcript_append" // Yeni çeviri satırları geldi
	OpCallEnded        = "call_ended"        // Session sonlandı
)

// ToggleTranslationData, toggle_translation payload'ı.
type ToggleTranslationData struct {
	On bool `json:"on"`
}

// ToggleMuteData, toggle_mute payload'ı.
type ToggleMuteData struct {
	Muted bool `json:"muted"`
}

// EndCallData, end_call payload'ı. Reason boş bırakılabilir.
type EndCallData struct {
	Reason string `json:"reason,omitempty"`
}

// CallEndedData, call_ended payload'ı.
type CallEndedData struct {
	Reason string `json:"reason"`
}
