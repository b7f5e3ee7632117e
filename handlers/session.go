// Package handlers, lokal observation API'sinin HTTP handler'larını içerir.
//
// API yalnızca loopback'e bind olur ve out-of-scope UI katmanı tarafından
// tüketilir: snapshot okuma, session sonlandırma ve toggle komutları.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/primetalker/callkit/call"
	"github.com/primetalker/callkit/pkg"
)

// SessionControls, handler'ın ihtiyaç duyduğu minimal controller yüzeyi.
// call.SessionController bunu otomatik karşılar.
type SessionControls interface {
	Snapshot() call.Snapshot
	End(reason string)
	SetTranslation(on bool)
	SetMuted(muted bool)
}

// EndRequest, POST /api/end body'si.
type EndRequest struct {
	Reason string `json:"reason"`
}

// TranslationRequest, POST /api/translation body'si.
type TranslationRequest struct {
	On bool `json:"on"`
}

// MuteRequest, POST /api/mute body'si.
type MuteRequest struct {
	Muted bool `json:"muted"`
}

// SessionHandler, aktif session'ın kontrol endpoint'lerini yöneten handler.
type SessionHandler struct {
	controls SessionControls
}

// NewSessionHandler, constructor. main.go'da wire-up edilir.
func NewSessionHandler(controls SessionControls) *SessionHandler {
	return &SessionHandler{controls: controls}
}

// GetSnapshot, session'ın anlık görünümünü döner.
//
// GET /api/session
// Response: { "success": true, "data": { ...snapshot } }
func (h *SessionHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	pkg.JSON(w, http.StatusOK, h.controls.Snapshot())
}

// EndSession, session'ı sonlandırır. Idempotent — ikinci çağrı da 200 döner.
//
// POST /api/end
// Body: { "reason": "local" } (reason opsiyonel)
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	var req EndRequest
	// Body boş olabilir — decode hatası varsayılana düşer.
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "local"
	}

	h.controls.End(req.Reason)
	pkg.JSON(w, http.StatusOK, h.controls.Snapshot())
}

// SetTranslation, çeviri overlay'ini açar/kapatır.
//
// POST /api/translation
// Body: { "on": true }
func (h *SessionHandler) SetTranslation(w http.ResponseWriter, r *http.Request) {
	var req TranslationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.controls.SetTranslation(req.On)
	pkg.JSON(w, http.StatusOK, h.controls.Snapshot())
}

// SetMute, lokal mikrofonu susturur/açar.
//
// POST /api/mute
// Body: { "muted": true }
func (h *SessionHandler) SetMute(w http.ResponseWriter, r *http.Request) {
	var req MuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.controls.SetMuted(req.Muted)
	pkg.JSON(w, http.StatusOK, h.controls.Snapshot())
}
