package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"telegram-gateway/internal/domain/gateway"
	"telegram-gateway/internal/infra/uploads"
)

// Дефолты публикации историй: спойлер включён, история живёт 42 секунды.
const (
	defaultStorySpoiler    = true
	defaultStoryTTLSeconds = 42
)

// maxMultipartMemory — порог буферизации multipart-загрузки в памяти.
const maxMultipartMemory = 32 << 20

// decodeJSON проверяет метод и разбирает тело запроса в dst.
// При ошибке ответ уже записан, обработчику остаётся выйти.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		writeErrorStatus(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// requireFields проверяет обязательные строковые поля; пишет 400 на первое пустое.
func requireFields(w http.ResponseWriter, fields map[string]string) bool {
	for name, value := range fields {
		if value == "" {
			writeErrorStatus(w, http.StatusBadRequest, name+" is required")
			return false
		}
	}
	return true
}

// POST /set_api_credentials — запомнить app_id/app_hash для новых соединений.
func (s *Server) handleSetAPICredentials(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AppID   int    `json:"app_id"`
		AppHash string `json:"app_hash"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AppID <= 0 || req.AppHash == "" {
		writeErrorStatus(w, http.StatusBadRequest, "app_id and app_hash are required")
		return
	}
	s.svc.SetCredentials(req.AppID, req.AppHash)
	writeJSON(w, http.StatusOK, map[string]string{"message": "API credentials set successfully"})
}

// POST /create_session — открыть (или возобновить) сессию и запросить OTP-код.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone       string `json:"phone"`
		SessionHash string `json:"session_hash"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireFields(w, map[string]string{"phone": req.Phone}) {
		return
	}

	start, err := s.svc.CreateSession(r.Context(), req.Phone, req.SessionHash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"session_hash":    start.SessionHash,
		"phone_code_hash": start.PhoneCodeHash,
	})
}

// POST /create_bot_session — открыть сессию и авторизовать её bot-токеном.
func (s *Server) handleCreateBotSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireFields(w, map[string]string{"token": req.Token}) {
		return
	}

	bot, err := s.svc.CreateBotSession(r.Context(), req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_hash": bot.SessionHash,
		"bot_info":     bot.Bot,
	})
}

// POST /verify_otp — подтвердить OTP-код. Штатные исходы протокола отдаются
// как помеченные ответы: «нужен пароль» — советом с кодом 200, «неверный код» — 401.
func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone         string `json:"phone"`
		Code          string `json:"code"`
		PhoneCodeHash string `json:"phone_code_hash"`
		Hash          string `json:"hash"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireFields(w, map[string]string{
		"phone":           req.Phone,
		"code":            req.Code,
		"phone_code_hash": req.PhoneCodeHash,
		"hash":            req.Hash,
	}) {
		return
	}

	result, err := s.svc.VerifyOTP(r.Context(), req.Hash, req.Phone, req.Code, req.PhoneCodeHash)
	if err != nil {
		writeError(w, err)
		return
	}
	switch result.Status {
	case gateway.SignInAuthorized:
		writeJSON(w, http.StatusOK, map[string]string{
			"message":      "Authenticated as " + result.User.FirstName,
			"session_hash": req.Hash,
		})
	case gateway.SignInPasswordNeeded:
		writeJSON(w, http.StatusOK, map[string]string{
			"message":      "Two-step verification is enabled. Please provide the password.",
			"session_hash": req.Hash,
		})
	case gateway.SignInCodeInvalid:
		writeErrorStatus(w, http.StatusUnauthorized, "Invalid code provided.")
	default:
		writeErrorStatus(w, http.StatusInternalServerError, "unknown sign-in status")
	}
}

// POST /verify_2fa — завершить вход паролем двухфакторной аутентификации.
func (s *Server) handleVerify2FA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password    string `json:"password"`
		SessionHash string `json:"session_hash"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireFields(w, map[string]string{
		"password":     req.Password,
		"session_hash": req.SessionHash,
	}) {
		return
	}

	user, err := s.svc.Verify2FA(r.Context(), req.SessionHash, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":      "Authenticated as " + user.FirstName,
		"session_hash": req.SessionHash,
	})
}

// POST /send_message — отправить текст получателю (числовой id или username).
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionHash string `json:"session_hash"`
		Recipient   string `json:"recipient"`
		Message     string `json:"message"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireFields(w, map[string]string{
		"session_hash": req.SessionHash,
		"recipient":    req.Recipient,
		"message":      req.Message,
	}) {
		return
	}

	msgID, err := s.svc.SendMessage(r.Context(), req.SessionHash, req.Recipient, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Message sent successfully",
		"message_id": msgID,
	})
}

// POST /join_channel — вступить в публичный канал по username.
func (s *Server) handleJoinChannel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionHash string `json:"session_hash"`
		Channel     string `json:"channel"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireFields(w, map[string]string{
		"session_hash": req.SessionHash,
		"channel":      req.Channel,
	}) {
		return
	}

	if err := s.svc.JoinChannel(r.Context(), req.SessionHash, req.Channel); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Successfully joined channel %s", req.Channel),
	})
}

// POST /send_story — опубликовать фото историей. Необязательные поля имеют
// дефолты: spoiler=true, ttl_seconds=42; указатели отличают «не прислано» от нуля.
func (s *Server) handleSendStory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hash       string `json:"hash"`
		FilePath   string `json:"file_path"`
		Spoiler    *bool  `json:"spoiler"`
		TTLSeconds *int   `json:"ttl_seconds"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireFields(w, map[string]string{
		"hash":      req.Hash,
		"file_path": req.FilePath,
	}) {
		return
	}

	story := gateway.StoryRequest{
		FilePath:   req.FilePath,
		Spoiler:    defaultStorySpoiler,
		TTLSeconds: defaultStoryTTLSeconds,
	}
	if req.Spoiler != nil {
		story.Spoiler = *req.Spoiler
	}
	if req.TTLSeconds != nil {
		story.TTLSeconds = *req.TTLSeconds
	}

	if err := s.svc.SendStory(r.Context(), req.Hash, story); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Story sent successfully"})
}

// POST /upload_base64_image — сохранить изображение, присланное строкой base64.
func (s *Server) handleUploadBase64Image(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename   string `json:"filename"`
		Base64Data string `json:"base64_data"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireFields(w, map[string]string{
		"filename":    req.Filename,
		"base64_data": req.Base64Data,
	}) {
		return
	}

	rec, err := s.uploads.SaveBase64(r.Context(), req.Filename, req.Base64Data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "Image uploaded successfully",
		"file_uri": rec.URI,
	})
}

// POST /upload_image — сохранить изображение из multipart-поля "file".
func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorStatus(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "form field \"file\" is required")
		return
	}
	defer func() { _ = file.Close() }()

	rec, err := s.uploads.Save(r.Context(), header.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "Image uploaded successfully",
		"file_uri": rec.URI,
	})
}

// GET /list_uploads — отдать индекс загрузок.
func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorStatus(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	records, err := s.uploads.List()
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = make([]uploads.Record, 0)
	}
	writeJSON(w, http.StatusOK, map[string]any{"uploads": records})
}
