package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gammadia/harrier/accounts"
	"github.com/gammadia/harrier/hunt"
	"github.com/gammadia/harrier/loghub"
	"github.com/gammadia/harrier/server/log"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// api is the JSON/WebSocket surface over the supervisor, the account source
// and the log hub.
type api struct {
	supervisor *hunt.Supervisor
	source     hunt.Source
	hub        *loghub.Hub
	upgrader   websocket.Upgrader
}

func newAPI(supervisor *hunt.Supervisor, source hunt.Source, hub *loghub.Hub) *api {
	return &api{
		supervisor: supervisor,
		source:     source,
		hub:        hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (a *api) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/accounts", a.listAccounts)
	mux.HandleFunc("GET /api/status", a.aggregateStatus)
	mux.HandleFunc("POST /api/accounts/{id}/hunt/start", a.startHunt)
	mux.HandleFunc("POST /api/accounts/{id}/hunt/stop", a.stopHunt)
	mux.HandleFunc("POST /api/hunt/start-all", a.startAll)
	mux.HandleFunc("POST /api/hunt/stop-all", a.stopAll)
	mux.HandleFunc("GET /api/accounts/{id}/logs", a.accountLogs)
	mux.HandleFunc("GET /api/logs", a.allLogs)
	mux.HandleFunc("GET /api/accounts/{id}/instances", a.listInstances)
	mux.HandleFunc("GET /api/accounts/{id}/storage", a.listVolumes)
	mux.HandleFunc("GET /ws/logs", a.streamLogs)

	return mux
}

// accountView is one account with its current run status, credentials omitted.
type accountView struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Zone   string         `json:"zone,omitempty"`
	Flavor string         `json:"flavor,omitempty"`
	Status hunt.RunStatus `json:"status"`
}

func (a *api) listAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := a.source.Accounts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, lo.Map(list, func(account hunt.Account, _ int) accountView {
		return accountView{
			ID:     account.ID,
			Name:   account.Name,
			Zone:   account.Zone,
			Flavor: account.Shape.Flavor,
			Status: a.supervisor.Status(account.ID),
		}
	}))
}

func (a *api) aggregateStatus(w http.ResponseWriter, r *http.Request) {
	list, err := a.source.Accounts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	running, retries, succeeded := 0, 0, 0
	for _, status := range a.supervisor.Statuses() {
		if status.Running {
			running++
		}
		if status.State == hunt.StateSucceeded {
			succeeded++
		}
		retries += status.RetryCount
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"accounts":  len(list),
		"running":   running,
		"succeeded": succeeded,
		"retries":   retries,
	})
}

func (a *api) startHunt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := a.source.Account(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	if err := a.supervisor.Start(id); err != nil {
		writeError(w, statusForHuntError(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"account": id, "hunt": "started"})
}

func (a *api) stopHunt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.supervisor.Stop(id); err != nil {
		writeError(w, statusForHuntError(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"account": id, "hunt": "stopping"})
}

func (a *api) startAll(w http.ResponseWriter, r *http.Request) {
	started, err := a.supervisor.StartAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"started": started})
}

func (a *api) stopAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusAccepted, map[string]int{"stopped": a.supervisor.StopAll()})
}

func (a *api) accountLogs(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := a.source.Account(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, a.hub.Recent(id, queryInt(r, "n")))
}

func (a *api) allLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.hub.RecentAll(queryInt(r, "n")))
}

func (a *api) listInstances(w http.ResponseWriter, r *http.Request) {
	inventory, ok := a.connectInventory(w, r)
	if !ok {
		return
	}

	instances, err := inventory.ListInstances(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, instances)
}

func (a *api) listVolumes(w http.ResponseWriter, r *http.Request) {
	inventory, ok := a.connectInventory(w, r)
	if !ok {
		return
	}

	volumes, err := inventory.ListVolumes(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, volumes)
}

// connectInventory resolves the account, connects its provider and requires
// the inventory surface. On failure the response has already been written.
func (a *api) connectInventory(w http.ResponseWriter, r *http.Request) (hunt.Inventory, bool) {
	account, err := a.source.Account(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}

	compute, err := a.supervisor.Connector().Connect(r.Context(), account)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return nil, false
	}

	inventory, ok := compute.(hunt.Inventory)
	if !ok {
		writeError(w, http.StatusNotImplemented, errors.New("provider does not expose an inventory"))
		return nil, false
	}
	return inventory, true
}

// streamLogs upgrades to WebSocket, replays recent entries, then forwards
// live hub entries until the client goes away.
func (a *api) streamLogs(w http.ResponseWriter, r *http.Request) {
	var filter loghub.Filter
	var history []loghub.Entry
	if account := r.URL.Query().Get("account"); account != "" {
		filter = loghub.ForAccount(account)
		history = a.hub.Recent(account, 0)
	} else {
		history = a.hub.RecentAll(0)
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		return
	}
	defer conn.Close()

	entries, unsubscribe := a.hub.Subscribe(filter)
	defer unsubscribe()

	// Reads are discarded; their only purpose is detecting the peer closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, entry := range history {
		if err := writeEntry(conn, entry); err != nil {
			return
		}
	}

	for {
		select {
		case entry := <-entries:
			if err := writeEntry(conn, entry); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeEntry(conn *websocket.Conn, entry loghub.Entry) error {
	lo.Must0(conn.SetWriteDeadline(time.Now().Add(10 * time.Second)))
	return conn.WriteJSON(entry)
}

func statusForHuntError(err error) int {
	if errors.Is(err, hunt.ErrAlreadyRunning) || errors.Is(err, hunt.ErrNotRunning) {
		return http.StatusConflict
	}
	if errors.Is(err, accounts.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func queryInt(r *http.Request, key string) int {
	value, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Debug("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
