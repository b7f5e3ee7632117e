// Package models — presence (oda bilgisi) modelleri.
package models

// RoomInfo, backend'in GET /room-info yanıtı (wire contract, camelCase).
//
// Oda, caller (creator) tarafından oluşturulur; receiver sonradan katılır.
// Bu yüzden caller'ın dili "creatorLanguage", receiver'ınki
// "participantLanguage" alanında taşınır.
type RoomInfo struct {
	CallerName       string `json:"callerName"`
	CallerLanguage   string `json:"creatorLanguage"`
	ReceiverName     string `json:"receiverName"`
	ReceiverLanguage string `json:"participantLanguage"`
}

// Peer, verilen role göre KARŞI tarafın dil ve isim alanlarını seçer.
// Caller receiver'ın alanlarını okur, receiver caller'ınkileri.
func (r *RoomInfo) Peer(role Role) (language, name string) {
	if role == RoleCaller {
		return r.ReceiverLanguage, r.ReceiverName
	}
	return r.CallerLanguage, r.CallerName
}

// PresenceSnapshot, her presence poll'ünde türetilen anlık görüntü.
// Persist edilmez.
//
// Invariant: PeerJoined yalnızca sunucu karşı rol için boş olmayan bir dil
// raporladığında true olur — sessizlikten ASLA çıkarım yapılmaz (başarısız
// bir poll peer'ın ayrıldığı anlamına gelmez).
type PresenceSnapshot struct {
	PeerJoined bool   `json:"peer_joined"`
	PeerName   string `json:"peer_name,omitempty"`
}
