// Package gateway exposes the booking API and forwards every request to the
// remote scripting backend as a single action call.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"turnera/gateway/internal/backend"
	"turnera/gateway/internal/slotcache"
)

const maxBodyBytes = 1 << 20

var errBadBody = errors.New("request body is not a JSON object or array")

// Gateway maps HTTP routes to backend actions.
type Gateway struct {
	backend backend.Caller
	slots   *slotcache.Cache
	logger  *log.Logger

	adminSecret    []byte
	allowedOrigins []string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *log.Logger) Option {
	return func(g *Gateway) {
		if l == nil {
			l = log.New(io.Discard, "", 0)
		}
		g.logger = l
	}
}

// WithAdminSecret requires an HS256 bearer token signed with secret on
// the /api/admin routes. An empty secret leaves them open.
func WithAdminSecret(secret string) Option {
	return func(g *Gateway) {
		if secret != "" {
			g.adminSecret = []byte(secret)
		}
	}
}

// WithAllowedOrigins sets the CORS origins.
func WithAllowedOrigins(origins []string) Option {
	return func(g *Gateway) { g.allowedOrigins = origins }
}

// New returns a Gateway forwarding to caller and caching the slot listing in slots.
func New(caller backend.Caller, slots *slotcache.Cache, opts ...Option) *Gateway {
	g := &Gateway{
		backend:        caller,
		slots:          slots,
		logger:         log.Default(),
		allowedOrigins: []string{"*"},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// payloadFunc extracts the action fields from an inbound request.
type payloadFunc func(r *http.Request) (map[string]any, error)

// route is one forwarded endpoint.
type route struct {
	method  string
	path    string
	action  string
	failMsg string
	payload payloadFunc
	// drop the cached slot listing once the call has been attempted
	invalidates bool
}

// Paths are relative to /api.
var publicRoutes = []route{
	{http.MethodPost, "/reservar", "bookAppointment", "Error al reservar el turno.", bookingPayload, true},
	{http.MethodGet, "/usuario/{dni}", "getUserDataByDNI", "No se pudo buscar el afiliado.", urlParam("dni"), false},
	{http.MethodPost, "/cancelar", "cancelAppointment", "Error al cancelar el turno.", bodyFields("eventId"), true},
	{http.MethodPost, "/profesionales/registro", "registerProfessional", "No se pudo procesar la solicitud de registro.", wholeBody("professionalData"), false},
	{http.MethodPost, "/profesionales/login", "loginProfessional", "Error en el servidor.", wholeBody("credentials"), false},
	{http.MethodPost, "/profesionales/derivar", "createReferral", "No se pudo guardar la derivación.", wholeBody("referralData"), false},
	{http.MethodPost, "/preventivistas/registro", "registerPreventivista", "No se pudo procesar el registro.", wholeBody("preventivistaData"), false},
	{http.MethodPost, "/preventivistas/login", "loginPreventivista", "Error en el servidor de login.", wholeBody("credentials"), false},
}

// Paths are relative to /api/admin.
var adminRoutes = []route{
	{http.MethodGet, "/turnos", "getAllAppointments", "No se pudieron cargar los turnos agendados.", nil, false},
	{http.MethodGet, "/derivaciones", "getAllReferrals", "No se pudieron cargar las derivaciones.", nil, false},
	{http.MethodGet, "/dias-bloqueados", "getBlockedDays", "No se pudieron cargar los días bloqueados.", nil, false},
	{http.MethodPost, "/bloquear-dia", "blockDay", "No se pudo bloquear el día.", bodyFields("date"), false},
}

const (
	actionNextAvailable  = "getNextAvailable"
	failMsgNextAvailable = "No se pudieron cargar los turnos."
)

// handleNextAvailable serves the slot listing through the cache.
func (g *Gateway) handleNextAvailable(w http.ResponseWriter, r *http.Request) {
	data, err := g.slots.GetOrPopulate(r.Context(), func(ctx context.Context) (json.RawMessage, error) {
		return g.backend.Call(ctx, backend.Request{Action: actionNextAvailable})
	})
	if err != nil {
		g.logger.Printf("gateway: %s: %v", actionNextAvailable, err)
		writeError(w, http.StatusInternalServerError, failMsgNextAvailable)
		return
	}
	writeRaw(w, data)
}

// forward builds the handler for one route.
func (g *Gateway) forward(rt route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fields map[string]any
		if rt.payload != nil {
			var err error
			if fields, err = rt.payload(r); err != nil {
				g.logger.Printf("gateway: %s: decoding request: %v", rt.action, err)
				writeError(w, http.StatusBadRequest, "JSON inválido.")
				return
			}
		}

		if rt.invalidates {
			// Runs whether or not the backend call succeeds.
			defer g.invalidateSlots(r.Context(), rt.action)
		}

		data, err := g.backend.Call(r.Context(), backend.Request{Action: rt.action, Fields: fields})
		if err != nil {
			g.logger.Printf("gateway: %s: %v", rt.action, err)
			writeError(w, http.StatusInternalServerError, rt.failMsg)
			return
		}
		writeRaw(w, data)
	}
}

func (g *Gateway) invalidateSlots(ctx context.Context, action string) {
	// the client may already be gone; the cache still has to be dropped
	if err := g.slots.Invalidate(context.WithoutCancel(ctx)); err != nil {
		g.logger.Printf("gateway: %s: invalidating slot cache: %v", action, err)
	}
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"cache":  g.slots.Stats(),
	})
}

// decodeBody reads a JSON object or array. An empty body decodes to an
// empty object.
func decodeBody(r *http.Request) (any, error) {
	var v any
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	switch v.(type) {
	case map[string]any, []any:
		return v, nil
	}
	return nil, errBadBody
}

// wholeBody forwards the request body under field.
func wholeBody(field string) payloadFunc {
	return func(r *http.Request) (map[string]any, error) {
		body, err := decodeBody(r)
		if err != nil {
			return nil, err
		}
		return map[string]any{field: body}, nil
	}
}

// bodyFields copies the named top-level body fields that are present.
func bodyFields(names ...string) payloadFunc {
	return func(r *http.Request) (map[string]any, error) {
		body, err := decodeBody(r)
		if err != nil {
			return nil, err
		}
		obj, _ := body.(map[string]any)
		return pick(obj, names...), nil
	}
}

func urlParam(name string) payloadFunc {
	return func(r *http.Request) (map[string]any, error) {
		return map[string]any{name: chi.URLParam(r, name)}, nil
	}
}

var userInfoFields = []string{"nombre", "apellido", "dni", "email", "whatsapp"}

// bookingPayload regroups the flat booking form into slotId + userInfo.
func bookingPayload(r *http.Request) (map[string]any, error) {
	body, err := decodeBody(r)
	if err != nil {
		return nil, err
	}
	obj, _ := body.(map[string]any)
	fields := pick(obj, "slotId")
	fields["userInfo"] = pick(obj, userInfoFields...)
	return fields, nil
}

func pick(obj map[string]any, names ...string) map[string]any {
	out := make(map[string]any, len(names))
	for _, n := range names {
		if v, ok := obj[n]; ok {
			out[n] = v
		}
	}
	return out
}
