// Package models — Transcript: çevrilmiş tek bir konuşma satırı.
//
// Sahiplik: transcript log'una yalnızca TranscriptPoller append eder;
// append edildikten sonra immutable'dır. Sıralama = varış sırası
// (append-only dizi, yeniden sıralanmaz). Log, session bittiğinde
// temizlenir — session'lar arası persist edilmez.
package models

// Speaker, satırın yerel mi uzak mı konuşmacıya ait olduğunu belirtir.
type Speaker string

const (
	SpeakerLocal  Speaker = "local"
	SpeakerRemote Speaker = "remote"
)

// Transcript, backend'in get-translations yanıtındaki tek bir öğe
// (wire contract, camelCase).
type Transcript struct {
	UserType       Role   `json:"userType"`
	SourceLang     string `json:"sourceLang"`
	TargetLang     string `json:"targetLang"`
	OriginalText   string `json:"originalText"`
	TranslatedText string `json:"translatedText"`
}

// Speaker, satırın konuşmacısını verilen yerel role göre türetir.
func (t *Transcript) Speaker(localRole Role) Speaker {
	if t.UserType == localRole {
		return SpeakerLocal
	}
	return SpeakerRemote
}
