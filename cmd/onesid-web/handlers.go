package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	onesid "github.com/MDR-Advocacia/OneSid"
	"github.com/MDR-Advocacia/OneSid/internal/legalone"
	"github.com/MDR-Advocacia/OneSid/internal/storage"
)

// handlers holds dependencies for all HTTP handler methods.
type handlers struct {
	engine *onesid.Engine
	cfg    *storage.Config
	auth   *auth
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("onesid-web: encode response: %v", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"message": fmt.Sprintf(format, args...)})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, claims *sessionClaims)

// requireUser rejects requests without a valid session cookie.
func (h *handlers) requireUser(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := h.auth.session(r)
		if claims == nil {
			writeMessage(w, http.StatusUnauthorized, "Acesso não autorizado")
			return
		}
		next(w, r, claims)
	}
}

// requireAdmin additionally rejects sessions without the admin role.
func (h *handlers) requireAdmin(next authedHandler) http.HandlerFunc {
	return h.requireUser(func(w http.ResponseWriter, r *http.Request, claims *sessionClaims) {
		if claims.Role != storage.RoleAdmin {
			writeMessage(w, http.StatusForbidden, "Apenas administradores")
			return
		}
		next(w, r, claims)
	})
}

func (h *handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "Requisição inválida")
		return
	}

	user, err := h.engine.Store().Authenticate(body.Username, body.Password)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Erro interno do servidor")
		return
	}
	if user == nil {
		writeMessage(w, http.StatusUnauthorized, "Credenciais inválidas")
		return
	}

	token, err := h.auth.issue(user.ID, user.Username, user.Role)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Erro interno do servidor")
		return
	}
	h.auth.setCookie(w, token)

	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "Login bem-sucedido",
		"username": user.Username,
		"role":     user.Role,
	})
}

func (h *handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.auth.clearCookie(w)
	writeMessage(w, http.StatusOK, "Logout bem-sucedido")
}

func (h *handlers) handleProfile(w http.ResponseWriter, r *http.Request) {
	claims := h.auth.session(r)
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"logged_in": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logged_in": true,
		"user_id":   claims.UserID,
		"username":  claims.Username,
		"role":      claims.Role,
	})
}

func (h *handlers) handlePanel(w http.ResponseWriter, r *http.Request, claims *sessionClaims) {
	entries, err := h.engine.Panel(claims.UserID)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Erro interno do servidor: %v", err)
		return
	}
	if entries == nil {
		entries = []onesid.PanelEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handlers) handleHistory(w http.ResponseWriter, r *http.Request, claims *sessionClaims) {
	entries, err := h.engine.History(claims.UserID)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Erro interno do servidor: %v", err)
		return
	}
	if entries == nil {
		entries = []onesid.PanelEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handlers) handleAddProcess(w http.ResponseWriter, r *http.Request, claims *sessionClaims) {
	var body struct {
		Number      string `json:"numero_processo"`
		Responsible string `json:"executante"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Number == "" {
		writeMessage(w, http.StatusBadRequest, "O número do processo é obrigatório")
		return
	}

	id, err := h.engine.AssociateProcess(claims.UserID, body.Number, body.Responsible)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Falha ao adicionar o processo: %v", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":    "Processo colocado na esteira de monitoramento!",
		"process_id": id,
	})
}

func (h *handlers) handleImportLegalOne(w http.ResponseWriter, r *http.Request, claims *sessionClaims) {
	client := legalone.NewClient(h.cfg.LegalOne)
	fetched, err := client.FetchCompletedTasks(r.Context())
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Ocorreu um erro durante a importação: %v", err)
		return
	}
	if len(fetched) == 0 {
		writeMessage(w, http.StatusOK, "Nenhuma tarefa nova encontrada no Legal One.")
		return
	}

	tasks := make([]onesid.ImportedTask, 0, len(fetched))
	for _, t := range fetched {
		tasks = append(tasks, onesid.ImportedTask{
			ID:            t.ID,
			ProcessNumber: t.ProcessNumber,
			CompletedBy:   t.CompletedBy,
		})
	}

	result, err := h.engine.ImportTasks(claims.UserID, tasks)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Ocorreu um erro durante a importação: %v", err)
		return
	}

	writeMessage(w, http.StatusCreated,
		"%d processos foram importados e adicionados à esteira de monitoramento.", result.Created)
}

func (h *handlers) handleAcknowledge(w http.ResponseWriter, r *http.Request, claims *sessionClaims) {
	var body struct {
		Number string `json:"numero_processo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Number == "" {
		writeMessage(w, http.StatusBadRequest, "Número do processo não fornecido")
		return
	}

	moved, err := h.engine.Acknowledge(claims.UserID, body.Number)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Erro interno do servidor: %v", err)
		return
	}
	if !moved {
		writeMessage(w, http.StatusNotFound, "Processo não está aguardando ciência")
		return
	}
	writeMessage(w, http.StatusOK, "Processo arquivado com sucesso.")
}

func (h *handlers) handleCatalogList(w http.ResponseWriter, r *http.Request, claims *sessionClaims) {
	items, err := h.engine.Catalog()
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Erro interno do servidor: %v", err)
		return
	}
	if items == nil {
		items = []onesid.RelevantItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handlers) handleCatalogReplace(w http.ResponseWriter, r *http.Request, claims *sessionClaims) {
	var body struct {
		Items []string `json:"itens"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "Requisição inválida")
		return
	}

	if err := h.engine.ReplaceCatalog(body.Items); err != nil {
		writeMessage(w, http.StatusInternalServerError, "Erro interno do servidor: %v", err)
		return
	}
	writeMessage(w, http.StatusOK, "Itens relevantes atualizados.")
}

func (h *handlers) handlePreferences(w http.ResponseWriter, r *http.Request, claims *sessionClaims) {
	prefs, err := h.engine.Preferences(claims.UserID)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Erro interno do servidor: %v", err)
		return
	}
	if prefs == nil {
		prefs = []onesid.ItemPreference{}
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *handlers) handleSetPreference(w http.ResponseWriter, r *http.Request, claims *sessionClaims) {
	itemID, err := strconv.ParseInt(r.PathValue("itemID"), 10, 64)
	if err != nil || itemID <= 0 {
		writeMessage(w, http.StatusBadRequest, "Item inválido")
		return
	}

	var body struct {
		Enabled bool `json:"is_enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "Requisição inválida")
		return
	}

	if err := h.engine.SetPreference(claims.UserID, itemID, body.Enabled); err != nil {
		if errors.Is(err, storage.ErrItemNotFound) {
			writeMessage(w, http.StatusNotFound, "Item não encontrado")
			return
		}
		writeMessage(w, http.StatusInternalServerError, "Erro interno do servidor: %v", err)
		return
	}
	writeMessage(w, http.StatusOK, "Preferência atualizada.")
}
