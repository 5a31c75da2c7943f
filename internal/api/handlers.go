package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/koltyakov/servgate/internal/auth"
	"github.com/koltyakov/servgate/internal/domain"
	"github.com/koltyakov/servgate/internal/notify"
	"github.com/koltyakov/servgate/internal/status"
)

// randomCode requests a generated code.
const randomCode = "random"

func (h *Handler) handleTokenCreate(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	token, err := auth.GenerateToken()
	if err != nil {
		h.internalError(w, r, "generate token", err)
		return
	}
	h.pending.Put(ip, token)
	h.metrics.SetPendingTokens(h.pending.Len())

	h.write(w, r, status.VerifyTokenCreated, nil)
	h.notifier.Notify(notify.Event{Type: notify.TokenCreated, IP: ip, Token: token})
}

func (h *Handler) handleTokenVerify(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	supplied := bodyFrom(r.Context()).str("token")
	if supplied == "" {
		h.write(w, r, status.MissingTokenVerifyException, nil)
		return
	}
	if !h.pending.Consume(ip, supplied) {
		h.write(w, r, status.BadTokenVerifyException, nil)
		return
	}
	h.metrics.SetPendingTokens(h.pending.Len())

	token, err := auth.GenerateToken()
	if err != nil {
		h.internalError(w, r, "generate token", err)
		return
	}
	if _, err := h.store.InsertToken(r.Context(), token, ip); err != nil {
		h.internalError(w, r, "insert token", err)
		return
	}
	h.log.Info("token verified", "ip", ip)

	h.write(w, r, status.VerifyTokenAccepted, status.Extra{"token": token})
	h.notifier.Notify(notify.Event{Type: notify.TokenVerified, IP: ip, Token: token})
}

func (h *Handler) handleCodeCreate(w http.ResponseWriter, r *http.Request) {
	b := bodyFrom(r.Context())
	port := strings.TrimSpace(b.str("port"))
	if port == "" {
		h.write(w, r, status.MissingPortException, nil)
		return
	}
	code := strings.ToLower(strings.TrimSpace(b.str("code")))
	if code == "" || code == randomCode {
		generated, err := auth.GenerateCode(h.cfg.CodeLength)
		if err != nil {
			h.internalError(w, r, "generate code", err)
			return
		}
		code = generated
	}
	if _, err := h.store.InsertCode(r.Context(), code, port); err != nil {
		h.internalError(w, r, "insert code", err)
		return
	}
	ip := clientIP(r)
	h.log.Info("code created", "code", code, "port", port, "ip", ip)

	h.write(w, r, status.CodeCreated, status.Extra{"code": code, "url": h.cfg.ServingURL(code)})
	h.notifier.Notify(notify.Event{Type: notify.CodeCreated, IP: ip, Code: code, Port: port})
}

func (h *Handler) handleCodeList(w http.ResponseWriter, r *http.Request) {
	codes, err := h.store.ListCodes(r.Context())
	if err != nil {
		h.internalError(w, r, "list codes", err)
		return
	}
	h.write(w, r, status.ListGiven, status.Extra{"codes": codes})
}

func (h *Handler) handleCodeDelete(w http.ResponseWriter, r *http.Request) {
	code := strings.ToLower(strings.TrimSpace(bodyFrom(r.Context()).str("code")))
	if code == "" {
		h.write(w, r, status.MissingCodeException, nil)
		return
	}
	target, err := h.store.GetTarget(r.Context(), code)
	if errors.Is(err, domain.ErrCodeNotFound) {
		h.write(w, r, status.CodeNotFoundException, nil)
		return
	}
	if err != nil {
		h.internalError(w, r, "get target", err)
		return
	}
	removed, err := h.store.DeleteCode(r.Context(), code)
	if err != nil {
		h.internalError(w, r, "delete code", err)
		return
	}
	if !removed {
		h.write(w, r, status.CodeNotFoundException, nil)
		return
	}
	ip := clientIP(r)
	h.log.Info("code deleted", "code", code, "ip", ip)

	h.write(w, r, status.CodeDeleted, nil)
	h.notifier.Notify(notify.Event{Type: notify.CodeDeleted, IP: ip, Code: code, Port: target.LocalPort()})
}
