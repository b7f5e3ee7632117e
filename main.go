// Package main, callkit CLI client'ının giriş noktasıdır.
//
// Bu dosyanın görevi — Dependency Injection "wire-up":
//  1. Config'i yükle
//  2. Backend REST client'ını oluştur
//  3. Oda ID'sini çöz (caller -room vermediyse yeni oda oluşturulur)
//  4. Session'ı kur
//  5. Arşiv database'ini başlat (opsiyonel)
//  6. Capture kaynağını hazırla (opsiyonel)
//  7. WebSocket Hub'ı başlat
//  8. SessionController'ı oluştur ve Hub'a bağla
//  9. Handler'ları oluştur, HTTP router'ı kur
// 10. CORS yapılandır
// 11. Lokal observation server'ı başlat
// 12. Session'ı başlat
// 13. Sinyal bekle, graceful teardown
//
// Global değişken YOK — her şey burada oluşturulup birbirine bağlanıyor.
//
// Kullanım:
//
//	callkit -role caller -lang en -name "Alice"
//	callkit -role receiver -room <id> -lang tr -name "Bora"
//	callkit history [-limit 20] [-id <call-id>]
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/primetalker/callkit/api"
	"github.com/primetalker/callkit/audio"
	"github.com/primetalker/callkit/call"
	"github.com/primetalker/callkit/config"
	"github.com/primetalker/callkit/database"
	"github.com/primetalker/callkit/device"
	"github.com/primetalker/callkit/handlers"
	"github.com/primetalker/callkit/middleware"
	"github.com/primetalker/callkit/models"
	"github.com/primetalker/callkit/repository"
	"github.com/primetalker/callkit/ws"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	if len(os.Args) > 1 && os.Args[1] == "history" {
		runHistory(os.Args[2:])
		return
	}

	runCall(os.Args[1:])
}

func runCall(args []string) {
	flags := flag.NewFlagSet("callkit", flag.ExitOnError)
	roleFlag := flags.String("role", "", "session role: caller | receiver")
	roomFlag := flags.String("room", "", "room id (required for receiver; caller creates one if omitted)")
	langFlag := flags.String("lang", "en", "preferred language code")
	nameFlag := flags.String("name", "", "display name")
	_ = flags.Parse(args)

	log.Println("[main] callkit starting...")

	// ─── 1. Config ───
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] failed to load config: %v", err)
	}
	log.Printf("[main] config loaded (backend=%s)", cfg.Backend.BaseURL)

	// ─── 2. Backend Client ───
	apiClient := api.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)

	// ─── 3. Oda ───
	// Caller -room vermediyse backend'de yeni oda açılır; dönen ID karşı
	// tarafa iletilmek üzere stdout'a yazılır.
	roomID := *roomFlag
	if models.Role(*roleFlag) == models.RoleCaller && roomID == "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Backend.Timeout)
		roomID, err = apiClient.CreateRoom(ctx, *langFlag, *nameFlag)
		cancel()
		if err != nil {
			log.Fatalf("[main] failed to create room: %v", err)
		}
		log.Printf("[main] room created: %s", roomID)
		fmt.Printf("Room ID: %s\n", roomID)
	}

	// ─── 4. Session ───
	session, err := models.NewSession(roomID, models.Role(*roleFlag), *langFlag, *nameFlag)
	if err != nil {
		log.Fatalf("[main] invalid session parameters: %v", err)
	}
	log.Printf("[main] session %s (room=%s role=%s)", session.ID, session.RoomID, session.Role)

	// ─── 5. Arşiv Database (opsiyonel) ───
	var historyRepo repository.CallHistoryRepository
	var archiver call.Archiver
	if cfg.History.Path != "" {
		migrations, err := fs.Sub(database.EmbeddedMigrations, "migrations")
		if err != nil {
			log.Fatalf("[main] failed to load embedded migrations: %v", err)
		}
		db, err := database.New(cfg.History.Path, migrations)
		if err != nil {
			log.Fatalf("[main] failed to initialize database: %v", err)
		}
		defer db.Close()

		repo := repository.NewSQLiteCallHistoryRepo(db)
		historyRepo = repo
		archiver = repo
	}

	// ─── 6. Capture Kaynağı (opsiyonel) ───
	// Boşsa meter fail-soft davranır — seviye 0'da sabitlenir, arama sürer.
	var source audio.CaptureSource
	if cfg.Audio.CapturePath != "" {
		source = audio.NewPCMFileSource(cfg.Audio.CapturePath)
	}

	// ─── 7. WebSocket Hub ───
	// UI'dan gelen komutlar callback'lerle controller'a gider — ws paketi
	// call paketine bağımlı değildir, bağlama burada yapılır. controller
	// değişkeni closure ile yakalanır; Hub'a ilk bağlantı server başlatılınca
	// gelebilir, controller o noktada kurulmuş olur.
	var controller call.SessionController
	hub := ws.NewHub(ws.Callbacks{
		OnEndCall: func(reason string) {
			if controller != nil {
				controller.End(reason)
			}
		},
		OnToggleTranslation: func(on bool) {
			if controller != nil {
				controller.SetTranslation(on)
			}
		},
		OnToggleMute: func(muted bool) {
			if controller != nil {
				controller.SetMuted(muted)
			}
		},
	})
	go hub.Run()

	// ─── 8. Session Controller ───
	controller, err = call.NewSessionController(call.Options{
		Session: session,
		Backend: apiClient,
		LoadFactory: func() (device.Factory, error) {
			factory, err := device.NewSignalingFactory(cfg.Signaling.URL)
			if err != nil {
				return nil, err
			}
			return factory, nil
		},
		Source:             source,
		Archiver:           archiver,
		PresenceInterval:   cfg.Poll.PresenceInterval,
		TranscriptInterval: cfg.Poll.TranscriptInterval,
		OnChange: func(snapshot call.Snapshot) {
			hub.BroadcastToAll(ws.Event{Op: ws.OpSnapshot, Data: snapshot})
		},
		OnTranscript: func(appended []models.Transcript) {
			hub.BroadcastToAll(ws.Event{Op: ws.OpTranscriptAppend, Data: appended})
		},
		OnEnded: func(reason string) {
			hub.BroadcastToAll(ws.Event{Op: ws.OpCallEnded, Data: ws.CallEndedData{Reason: reason}})
		},
	})
	if err != nil {
		log.Fatalf("[main] failed to build session controller: %v", err)
	}

	// ─── 9. Handler Layer + Router ───
	sessionHandler := handlers.NewSessionHandler(controller)
	historyHandler := handlers.NewHistoryHandler(historyRepo)
	wsHandler := ws.NewHandler(hub, func() any { return controller.Snapshot() }, cfg.UI.AllowedOrigins)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","service":"callkit"}`)
	})

	mux.HandleFunc("GET /api/session", sessionHandler.GetSnapshot)
	mux.HandleFunc("POST /api/end", sessionHandler.EndSession)
	mux.HandleFunc("POST /api/translation", sessionHandler.SetTranslation)
	mux.HandleFunc("POST /api/mute", sessionHandler.SetMute)

	mux.HandleFunc("GET /api/history", historyHandler.ListCalls)
	mux.HandleFunc("GET /api/history/{id}", historyHandler.GetCall)

	mux.HandleFunc("GET /ws", wsHandler.HandleConnection)

	// ─── 10. CORS ───
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.UI.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})

	// Middleware chain: loopback guard → logging → CORS → router
	handler := middleware.Loopback(middleware.Logging(corsHandler.Handler(mux)))

	// ─── 11. Lokal Observation Server ───
	// Yalnızca loopback'e bind olur — UI katmanı buradan okur.
	srv := &http.Server{
		Addr:         cfg.UI.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("[main] observation server listening on %s", cfg.UI.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] server error: %v", err)
		}
	}()

	// ─── 12. Session Başlat ───
	if err := controller.Begin(context.Background()); err != nil {
		log.Fatalf("[main] failed to begin session: %v", err)
	}

	// ─── 13. Graceful Teardown ───
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		log.Println("[main] interrupt received")
		controller.End("local")
	case <-controller.Done():
	}

	// End hangi yoldan tetiklenmiş olursa olsun teardown'ın bitmesini bekle.
	<-controller.Done()
	log.Printf("[main] session ended (reason=%s)", controller.Snapshot().EndReason)

	hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("[main] forced shutdown: %v", err)
	}

	log.Println("[main] stopped gracefully")
}

// runHistory, arşivlenmiş aramaları listeler ya da tek bir aramayı
// transcript'iyle birlikte yazdırır.
func runHistory(args []string) {
	flags := flag.NewFlagSet("history", flag.ExitOnError)
	limitFlag := flags.Int("limit", 20, "maximum number of calls to list")
	idFlag := flags.String("id", "", "show a single call with its transcript")
	_ = flags.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[history] failed to load config: %v", err)
	}
	if cfg.History.Path == "" {
		log.Fatal("[history] call history is disabled (HISTORY_DB_PATH is empty)")
	}

	migrations, err := fs.Sub(database.EmbeddedMigrations, "migrations")
	if err != nil {
		log.Fatalf("[history] failed to load embedded migrations: %v", err)
	}
	db, err := database.New(cfg.History.Path, migrations)
	if err != nil {
		log.Fatalf("[history] failed to open database: %v", err)
	}
	defer db.Close()

	repo := repository.NewSQLiteCallHistoryRepo(db)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if *idFlag != "" {
		record, err := repo.Get(ctx, *idFlag)
		if err != nil {
			log.Fatalf("[history] %v", err)
		}
		printCall(record)
		return
	}

	records, err := repo.List(ctx, *limitFlag)
	if err != nil {
		log.Fatalf("[history] %v", err)
	}
	if len(records) == 0 {
		fmt.Println("no archived calls")
		return
	}
	for _, rec := range records {
		fmt.Printf("%s  %s  room=%s  role=%s  peer=%s  reason=%s  duration=%s\n",
			rec.ID,
			rec.EndedAt.Local().Format("2006-01-02 15:04"),
			rec.RoomID,
			rec.Role,
			rec.PeerName,
			rec.EndReason,
			rec.Duration().Round(time.Second),
		)
	}
}

// printCall, tek bir arşiv kaydını transcript satırlarıyla yazdırır.
func printCall(record *models.CallRecord) {
	fmt.Printf("call %s\n", record.ID)
	fmt.Printf("  room:     %s\n", record.RoomID)
	fmt.Printf("  role:     %s\n", record.Role)
	fmt.Printf("  peer:     %s\n", record.PeerName)
	fmt.Printf("  reason:   %s\n", record.EndReason)
	fmt.Printf("  duration: %s\n", record.Duration().Round(time.Second))
	if len(record.Transcripts) == 0 {
		fmt.Println("  (no transcript)")
		return
	}
	fmt.Println("  transcript:")
	for _, line := range record.Transcripts {
		fmt.Printf("    [%s %s→%s] %s | %s\n",
			line.UserType, line.SourceLang, line.TargetLang,
			line.OriginalText, line.TranslatedText)
	}
}
