// Package api, arama backend'inin REST client'ıdır.
//
// Tüketilen endpoint'ler (payload shape'leri contract'tır):
//
//	GET  /voice-token                          → { token }
//	GET  /room-info?roomId=                    → rol başına dil + isim; 404 ⇒ oda silinmiş
//	GET  /get-translations?roomId&userType&since → { translations: [...] }
//	POST /create-room                          → { roomId }
//	POST /join-room                            → receiver presence kaydı
//	POST /leave-room                           → ayrılış bildirimi (best-effort)
//
// Hata map'lemesi: 404 → pkg.ErrNotFound, diğer non-2xx → pkg.ErrUnavailable.
// Çağıran taraf errors.Is ile karar verir — örneğin PresenceMonitor 404'ü
// "oda silinmiş" sinyali olarak yorumlar.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/primetalker/callkit/models"
	"github.com/primetalker/callkit/pkg"
)

// Client, backend operasyonlarının interface'i.
// call katmanı bunun tamamına değil, ihtiyaç duyduğu minimal
// interface'lere bağlanır (TokenFetcher, RoomInfoFetcher, ...).
type Client interface {
	// VoiceToken, ses transport erişim token'ını alır.
	VoiceToken(ctx context.Context) (*VoiceTokenResponse, error)

	// RoomInfo, odanın anlık presence bilgisini döner.
	// Oda yoksa pkg.ErrNotFound (sarılı) döner.
	RoomInfo(ctx context.Context, roomID string) (*models.RoomInfo, error)

	// Translations, since cursor'ından sonraki yeni transcript öğelerini döner.
	Translations(ctx context.Context, roomID string, role models.Role, since int64) ([]models.Transcript, error)

	// CreateRoom, yeni bir oda oluşturur ve oda ID'sini döner.
	CreateRoom(ctx context.Context, language, name string) (string, error)

	// JoinRoom, receiver'ı odaya katılımcı olarak kaydeder.
	JoinRoom(ctx context.Context, roomID, language, name string) error

	// LeaveRoom, bu rolün odadan ayrıldığını bildirir (best-effort).
	LeaveRoom(ctx context.Context, roomID string, role models.Role) error
}

// VoiceTokenResponse, GET /voice-token yanıtı.
type VoiceTokenResponse struct {
	Token string `json:"token"`
}

// translationsResponse, GET /get-translations yanıtı.
type translationsResponse struct {
	Translations []models.Transcript `json:"translations"`
}

// createRoomRequest / createRoomResponse, POST /create-room payload'ları.
type createRoomRequest struct {
	CreatorLanguage string `json:"creatorLanguage"`
	CreatorName     string `json:"creatorName"`
}

type createRoomResponse struct {
	RoomID string `json:"roomId"`
}

// joinRoomRequest, POST /join-room payload'ı.
type joinRoomRequest struct {
	RoomID              string `json:"roomId"`
	ParticipantLanguage string `json:"participantLanguage"`
	ParticipantName     string `json:"participantName"`
}

// leaveRoomRequest, POST /leave-room payload'ı.
type leaveRoomRequest struct {
	RoomID   string      `json:"roomId"`
	UserType models.Role `json:"userType"`
}

// httpClient, Client'ın HTTP implementasyonu.
type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient, constructor.
// timeout tek bir isteğin üst sınırıdır — poller'lar ayrıca kendi
// context timeout'larını geçirir.
func NewClient(baseURL string, timeout time.Duration) Client {
	return &httpClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) VoiceToken(ctx context.Context) (*VoiceTokenResponse, error) {
	var resp VoiceTokenResponse
	if err := c.get(ctx, "/voice-token", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *httpClient) RoomInfo(ctx context.Context, roomID string) (*models.RoomInfo, error) {
	query := url.Values{"roomId": {roomID}}

	var info models.RoomInfo
	if err := c.get(ctx, "/room-info", query, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *httpClient) Translations(ctx context.Context, roomID string, role models.Role, since int64) ([]models.Transcript, error) {
	query := url.Values{
		"roomId":   {roomID},
		"userType": {string(role)},
		"since":    {strconv.FormatInt(since, 10)},
	}

	var resp translationsResponse
	if err := c.get(ctx, "/get-translations", query, &resp); err != nil {
		return nil, err
	}
	return resp.Translations, nil
}

func (c *httpClient) CreateRoom(ctx context.Context, language, name string) (string, error) {
	var resp createRoomResponse
	err := c.post(ctx, "/create-room", createRoomRequest{
		CreatorLanguage: language,
		CreatorName:     name,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.RoomID == "" {
		return "", fmt.Errorf("%w: create-room response missing roomId", pkg.ErrUnavailable)
	}
	return resp.RoomID, nil
}

func (c *httpClient) JoinRoom(ctx context.Context, roomID, language, name string) error {
	return c.post(ctx, "/join-room", joinRoomRequest{
		RoomID:              roomID,
		ParticipantLanguage: language,
		ParticipantName:     name,
	}, nil)
}

func (c *httpClient) LeaveRoom(ctx context.Context, roomID string, role models.Role) error {
	return c.post(ctx, "/leave-room", leaveRoomRequest{
		RoomID:   roomID,
		UserType: role,
	}, nil)
}

// get, bir GET isteği yapar ve yanıtı out'a decode eder.
func (c *httpClient) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}

	return c.do(req, path, out)
}

// post, bir JSON POST isteği yapar; out nil ise gövde decode edilmez.
func (c *httpClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, path, out)
}

func (c *httpClient) do(req *http.Request, path string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", pkg.ErrUnavailable, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", pkg.ErrNotFound, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned status %d", pkg.ErrUnavailable, path, resp.StatusCode)
	}

	if out == nil {
		// Gövdeyi boşalt — connection reuse için.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %v", pkg.ErrUnavailable, path, err)
	}
	return nil
}
