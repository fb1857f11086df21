// Package httpapi exposes the aggregation core to front-end consumers over a
// small REST surface.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	app "github.com/minibay/storefront/internal/app"
	domain "github.com/minibay/storefront/internal/app/domain/listing"
	"github.com/minibay/storefront/internal/app/domain/peer"
	"github.com/minibay/storefront/internal/app/metrics"
	"github.com/minibay/storefront/internal/app/services/registry"
	"github.com/minibay/storefront/pkg/logger"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
	log *logger.Logger
}

// NewHandler returns a mux exposing the core REST API.
func NewHandler(application *app.Application, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/listings", h.listings)
	mux.HandleFunc("/listings/", h.listingResources)
	mux.HandleFunc("/report", h.report)
	mux.HandleFunc("/peers", h.peers)
	mux.HandleFunc("/dapps", h.registerDapp)
	mux.HandleFunc("/profiles", h.registerProfile)
	mux.HandleFunc("/wallet", h.wallet)
	mux.HandleFunc("/uploads", h.upload)
	mux.HandleFunc("/cache", h.clearCache)
	mux.HandleFunc("/healthz", h.health)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func (h *handler) listings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var entries []domain.Entry
	if r.URL.Query().Get("sort") == "arrival" {
		entries = h.app.Listings.Listings()
	} else {
		entries = h.app.Listings.ListingsByPopularity()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"listings": entries})
}

func (h *handler) listingResources(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/listings/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		entry, ok := h.app.Listings.Get(parts[0])
		if !ok {
			writeError(w, http.StatusNotFound, "listing not found")
			return
		}
		writeJSON(w, http.StatusOK, entry)

	case len(parts) == 2 && parts[1] == "download" && r.Method == http.MethodPost:
		h.download(w, r, parts[0])

	case len(parts) == 2 && parts[1] == "tip" && r.Method == http.MethodPost:
		h.tip(w, r, parts[0])

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *handler) download(w http.ResponseWriter, r *http.Request, entryID string) {
	entry, ok := h.app.Listings.Get(entryID)
	if !ok {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}

	var payload struct {
		Actor string `json:"actor"`
	}
	decodeOptional(r, &payload)

	h.app.Listings.IncrementDownloads(entryID)
	if err := h.app.Broadcast.BroadcastDownload(r.Context(), entryID, payload.Actor); err != nil {
		// Best-effort channel; the local counter already moved.
		h.log.WithError(err).Debug("download broadcast not accepted")
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"package_url": entry.PackageURL,
	})
}

func (h *handler) tip(w http.ResponseWriter, r *http.Request, entryID string) {
	entry, ok := h.app.Listings.Get(entryID)
	if !ok {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}

	var payload struct {
		Amount float64 `json:"amount"`
		From   string  `json:"from"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "positive amount required")
		return
	}

	h.app.Listings.IncrementTips(entryID)
	if err := h.app.Broadcast.BroadcastTip(r.Context(), entryID, payload.Amount, entry.PublisherAddress, payload.From); err != nil {
		h.log.WithError(err).Debug("tip broadcast not accepted")
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "accepted"})
}

func (h *handler) report(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"report": h.app.Listings.Report()})
}

func (h *handler) peers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		peers, err := h.app.Peers.ListPeers(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"peers": peers})

	case http.MethodPost:
		var payload struct {
			Address            string `json:"address"`
			DisplayName        string `json:"display_name"`
			CatalogURL         string `json:"catalog_url"`
			LiveChannelAddress string `json:"live_channel_address"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Address == "" {
			writeError(w, http.StatusBadRequest, "address required")
			return
		}
		identity, err := h.app.Peers.UpsertPeer(r.Context(), peer.Identity{
			Address:            payload.Address,
			DisplayName:        payload.DisplayName,
			CatalogURL:         payload.CatalogURL,
			LiveChannelAddress: payload.LiveChannelAddress,
			UpdatedAt:          time.Now().UTC(),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, identity)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// registerDapp performs the two independently-failable steps of publishing:
// the durable registry write, then the best-effort broadcast. Only the first
// carries durability; its failure is surfaced explicitly because it costs a
// fee.
func (h *handler) registerDapp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var payload struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Version     string `json:"version"`
		Category    string `json:"category"`
		PackageURL  string `json:"package_url"`
		IconURL     string `json:"icon_url"`
		Publisher   string `json:"publisher"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Name == "" || payload.PackageURL == "" || payload.Publisher == "" {
		writeError(w, http.StatusBadRequest, "name, package_url and publisher are required")
		return
	}

	entry := domain.Entry{
		ID:               domain.EntryID(payload.Name, payload.Publisher),
		Name:             payload.Name,
		Description:      payload.Description,
		Version:          payload.Version,
		Category:         payload.Category,
		PackageURL:       payload.PackageURL,
		IconURL:          payload.IconURL,
		PublisherAddress: payload.Publisher,
		Origin:           domain.OriginP2PCatalog,
		FetchedAt:        time.Now().UTC(),
	}

	// Optimistic local copy; registry durability is decided below.
	h.app.Listings.AddLocal(entry)

	txID, err := h.app.Registry.RegisterDapp(r.Context(), entry, payload.Publisher)
	if err != nil {
		var werr *registry.WriteError
		status := http.StatusBadGateway
		kind := string(registry.WriteRPCFailure)
		if errors.As(err, &werr) && werr.Kind == registry.WriteInsufficientBalance {
			status = http.StatusPaymentRequired
			kind = string(registry.WriteInsufficientBalance)
		}
		writeJSON(w, status, map[string]interface{}{
			"error":         err.Error(),
			"kind":          kind,
			"entry_visible": true,
		})
		return
	}

	if err := h.app.Broadcast.BroadcastNewDapp(r.Context(), entry); err != nil {
		h.log.WithError(err).Debug("new dapp broadcast not accepted")
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"entry": entry,
		"txid":  txID,
	})
}

func (h *handler) registerProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var payload struct {
		Address            string `json:"address"`
		DisplayName        string `json:"display_name"`
		CatalogURL         string `json:"catalog_url"`
		LiveChannelAddress string `json:"live_channel_address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Address == "" {
		writeError(w, http.StatusBadRequest, "address required")
		return
	}

	profile := peer.Profile{
		Address:            payload.Address,
		DisplayName:        payload.DisplayName,
		CatalogURL:         payload.CatalogURL,
		LiveChannelAddress: payload.LiveChannelAddress,
		RegisteredAt:       time.Now().UTC(),
	}

	if _, err := h.app.Peers.UpsertPeer(r.Context(), profile.Identity()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	txID, err := h.app.Registry.RegisterProfile(r.Context(), profile)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if err := h.app.Broadcast.BroadcastProfileUpdate(r.Context(), profile); err != nil {
		h.log.WithError(err).Debug("profile broadcast not accepted")
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"txid": txID})
}

// wallet surfaces the node wallet backing registrations: receive address,
// balance, and recent transactions.
func (h *handler) wallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	address, err := h.app.Ledger.GetAddress(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	balance, err := h.app.Ledger.Balance(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	history, err := h.app.Ledger.History(r.Context(), 20)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": address,
		"balance": balance,
		"history": history,
	})
}

// upload forwards a package blob to the object-storage gateway and returns
// the content identifier for use as a package URL.
func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.app.Uploads == nil {
		writeError(w, http.StatusServiceUnavailable, "no object store configured")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' required")
		return
	}
	defer file.Close()

	id, err := h.app.Uploads.Upload(r.Context(), header.Filename, file)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// clearCache drops cached catalog snapshots, forcing the next refresh to
// refetch. An empty url parameter clears every record.
func (h *handler) clearCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := h.app.Cache.ClearCatalog(r.Context(), r.URL.Query().Get("url")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeOptional(r *http.Request, v interface{}) {
	if r.Body == nil {
		return
	}
	_ = json.NewDecoder(r.Body).Decode(v)
}
