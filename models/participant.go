package models

// Participant, UI'ın render ettiği katılımcı view model'i.
//
// Bağımsız state DEĞİLDİR — her seferinde Session + PresenceSnapshot +
// lokal toggle'lar + AudioLevelMeter çıktısından yeniden hesaplanır,
// asla yerinde mutate edilmez.
type Participant struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsLocal bool   `json:"is_local"`
	Muted   bool   `json:"muted"`
	Level   int    `json:"level"`
}

// BuildParticipants, katılımcı listesini türetir.
// Yerel kullanıcı her zaman listededir; peer yalnızca katıldıysa eklenir.
func BuildParticipants(localName string, muted bool, level int, presence PresenceSnapshot) []Participant {
	participants := []Participant{
		{ID: "you", Name: localName, IsLocal: true, Muted: muted, Level: level},
	}

	if presence.PeerJoined {
		name := presence.PeerName
		if name == "" {
			name = "Partner"
		}
		participants = append(participants, Participant{
			ID:   "partner",
			Name: name,
		})
	}

	return participants
}
