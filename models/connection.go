// Package models — ConnectionState: ses cihazı yaşam döngüsünün kaba durumu.
//
// Durum sırası monotoniktir:
//
//	idle → loading_sdk → fetching_token → registering → ready
//	     → connecting → connected → ended
//
// Tek istisna "error": terminal olmayan herhangi bir durumdan erişilebilir
// ve kendisi de terminaldir — otomatik retry yoktur, kullanıcı session'ı
// açıkça yeniden başlatmalıdır.
package models

// ConnectionState, ses cihazı yaşam döngüsünün durumlarından biridir.
type ConnectionState string

const (
	StateIdle          ConnectionState = "idle"
	StateLoadingSDK    ConnectionState = "loading_sdk"
	StateFetchingToken ConnectionState = "fetching_token"
	StateRegistering   ConnectionState = "registering"
	StateReady         ConnectionState = "ready"
	StateConnecting    ConnectionState = "connecting"
	StateConnected     ConnectionState = "connected"
	StateEnded         ConnectionState = "ended"
	StateError         ConnectionState = "error"
)

// Terminal, durumun terminal olup olmadığını döner.
// Terminal durumdan başka duruma geçiş yapılmaz.
func (s ConnectionState) Terminal() bool {
	return s == StateEnded || s == StateError
}

// Status, kullanıcıya gösterilen kısa durum metnini döner.
// Hata durumlarında state machine daha spesifik bir metin üretir;
// bu varsayılan eşlemedir.
func (s ConnectionState) Status() string {
	switch s {
	case StateIdle:
		return "Click Start to Join"
	case StateLoadingSDK:
		return "Loading transport…"
	case StateFetchingToken:
		return "Fetching token…"
	case StateRegistering:
		return "Registering…"
	case StateReady:
		return "Device Ready"
	case StateConnecting:
		return "Connecting…"
	case StateConnected:
		return "Connected"
	case StateEnded:
		return "Call Ended"
	case StateError:
		return "Device Error"
	default:
		return string(s)
	}
}
