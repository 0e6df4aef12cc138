// Package identity реализует приём вебхуков identity-провайдера.
//
// Подпись проверяется до разбора полезной нагрузки: HMAC-SHA256 от строки
// "{id}.{timestamp}.{body}" с общим секретом, заголовки webhook-id,
// webhook-timestamp и webhook-signature. Интерактивной аутентификации
// на этом пути нет — доверие обеспечивает только подпись.
package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-reconciler/internal/services/reconciler"
)

// Service описывает операции реконсилятора для событий identity-провайдера.
type Service interface {
	HandleIdentityCreated(ctx context.Context, event reconciler.IdentityEvent) error
	HandleIdentityUpdated(ctx context.Context, event reconciler.IdentityEvent) error
	HandleIdentityDeleted(ctx context.Context, event reconciler.IdentityEvent) error
}

// Handler принимает и проверяет вебхуки identity-провайдера.
type Handler struct {
	log       *slog.Logger // Логгер для записи информации и ошибок
	service   Service
	secret    []byte        // Секрет для проверки подписи
	tolerance time.Duration // Допустимый перекос timestamp
}

// New создает новый Handler.
func New(log *slog.Logger, service Service, secret string, tolerance time.Duration) *Handler {
	// Секрет приходит в виде whsec_<base64>; хвост декодируется,
	// при неудаче секрет используется как есть.
	raw := strings.TrimPrefix(secret, "whsec_")
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		key = []byte(secret)
	}
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &Handler{
		log:       log,
		service:   service,
		secret:    key,
		tolerance: tolerance,
	}
}

// Payload полезная нагрузка события identity-провайдера.
type Payload struct {
	Type string `json:"type"`
	Data struct {
		ID                    string `json:"id"`
		FirstName             string `json:"first_name"`
		LastName              string `json:"last_name"`
		PrimaryEmailAddressID string `json:"primary_email_address_id"`
		EmailAddresses        []struct {
			ID           string `json:"id"`
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	} `json:"data"`
}

// primaryEmail возвращает основную почту из события, пустая строка — её нет.
func (p *Payload) primaryEmail() string {
	for _, addr := range p.Data.EmailAddresses {
		if addr.ID == p.Data.PrimaryEmailAddressID {
			return addr.EmailAddress
		}
	}
	if len(p.Data.EmailAddresses) > 0 {
		return p.Data.EmailAddresses[0].EmailAddress
	}
	return ""
}

// verifySignature проверяет подпись вебхука по схеме "v1,<base64>".
func (h *Handler) verifySignature(id, timestamp string, body []byte, signatures string) bool {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(id + "." + timestamp + "."))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	for _, part := range strings.Fields(signatures) {
		versioned := strings.SplitN(part, ",", 2)
		if len(versioned) != 2 || versioned[0] != "v1" {
			continue
		}
		if hmac.Equal([]byte(expected), []byte(versioned[1])) {
			return true
		}
	}
	return false
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.webhook.identity"
	log := h.log.With(slog.String("op", op))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	id := r.Header.Get("webhook-id")
	timestamp := r.Header.Get("webhook-timestamp")
	signature := r.Header.Get("webhook-signature")
	if id == "" || timestamp == "" || signature == "" {
		log.Error("missing webhook signature headers")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		log.Error("invalid webhook timestamp", sl.Err(err))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if skew := time.Since(time.Unix(ts, 0)); skew > h.tolerance || skew < -h.tolerance {
		log.Error("webhook timestamp outside tolerance")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if !h.verifySignature(id, timestamp, body, signature) {
		log.Error("invalid webhook signature")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(payload.Data.FirstName + " " + payload.Data.LastName)
	event := reconciler.IdentityEvent{
		ID:      id,
		ClerkID: payload.Data.ID,
		Email:   payload.primaryEmail(),
		Name:    name,
	}

	switch payload.Type {
	case "user.created":
		err = h.service.HandleIdentityCreated(r.Context(), event)
	case "user.updated":
		err = h.service.HandleIdentityUpdated(r.Context(), event)
	case "user.deleted":
		err = h.service.HandleIdentityDeleted(r.Context(), event)
	default:
		log.Info("ignored webhook event", slog.String("event", payload.Type))
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		log.Error("failed to process webhook event", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	log.Info("webhook processed successfully",
		slog.String("event", payload.Type), slog.String("clerk_id", payload.Data.ID))
	w.WriteHeader(http.StatusOK)
}
