package controlapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"medea/internal/api"
	"medea/internal/auth"
	"medea/internal/id"
)

// Transport is the chi-based HTTP surface over RoomService. Routes are
// keyed by path depth (room / room+member / room+member+endpoint) rather
// than threading a single slash-bearing local:// URI through one path
// param, since chi (like most routers) treats "/" as a segment
// separator; buildURI reassembles the local:// form RoomService and
// error responses report.
type Transport struct {
	service *RoomService
	jwt     *auth.JWTService
	router  *chi.Mux
}

func NewTransport(service *RoomService, jwtService *auth.JWTService, ipResolver *api.ClientIPResolver, rateLimit int, rateWindow time.Duration) *Transport {
	t := &Transport{service: service, jwt: jwtService}

	r := chi.NewRouter()
	r.Use(api.SlogRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(api.SecurityHeadersMiddleware)
	r.Use(api.MaxBodySizeMiddleware(1 << 20))
	r.Use(api.RateLimitMiddleware(api.NewRateLimiter(rateLimit, rateWindow), ipResolver))
	r.Use(t.requireControlAuth)

	r.Route("/{room_id}", func(r chi.Router) {
		r.Post("/", t.handleCreateRoom)
		r.Put("/", t.handleApply)
		r.Get("/", t.handleGet)
		r.Delete("/", t.handleDelete)

		r.Route("/{member_id}", func(r chi.Router) {
			r.Post("/", t.handleCreateMember)
			r.Get("/", t.handleGet)
			r.Delete("/", t.handleDelete)

			r.Route("/{endpoint_id}", func(r chi.Router) {
				r.Post("/", t.handleCreateEndpoint)
				r.Get("/", t.handleGet)
				r.Delete("/", t.handleDelete)
			})
		})
	})

	t.router = r
	return t
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.router.ServeHTTP(w, r)
}

func buildURI(r *http.Request) string {
	uri := "local://" + chi.URLParam(r, "room_id")
	if m := chi.URLParam(r, "member_id"); m != "" {
		uri += "/" + m
		if e := chi.URLParam(r, "endpoint_id"); e != "" {
			uri += "/" + e
		}
	}
	return uri
}

func (t *Transport) requireControlAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			api.WriteJSON(w, http.StatusUnauthorized, &ErrorResponse{Code: CodeUnknown, Text: "authorization header required"})
			return
		}
		if _, err := t.jwt.ValidateControlAPIToken(parts[1]); err != nil {
			api.WriteJSON(w, http.StatusUnauthorized, &ErrorResponse{Code: CodeUnknown, Text: "invalid control API token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeErrResponse(w http.ResponseWriter, errResp *ErrorResponse) {
	api.WriteJSON(w, errResp.Status, errResp)
}

func badRequest(w http.ResponseWriter, uri string, err error) {
	writeErrResponse(w, newErr(400, CodeInvalidSpec, uri, err.Error()))
}

func (t *Transport) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	uri := buildURI(r)
	var spec RoomSpec
	if err := api.DecodeAndValidate(r.Body, &spec); err != nil {
		badRequest(w, uri, err)
		return
	}
	spec.ID = id.RoomID(chi.URLParam(r, "room_id"))
	if err := t.service.CreateRoom(r.Context(), spec); err != nil {
		writeErrResponse(w, FromError(err, uri))
		return
	}
	api.WriteJSON(w, http.StatusCreated, struct{}{})
}

func (t *Transport) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	uri := buildURI(r)
	var spec MemberSpec
	if err := api.DecodeAndValidate(r.Body, &spec); err != nil {
		badRequest(w, uri, err)
		return
	}
	roomID := id.RoomID(chi.URLParam(r, "room_id"))
	memberID := id.MemberID(chi.URLParam(r, "member_id"))
	if err := t.service.CreateMember(r.Context(), roomID, memberID, spec); err != nil {
		writeErrResponse(w, FromError(err, uri))
		return
	}
	api.WriteJSON(w, http.StatusCreated, struct{}{})
}

func (t *Transport) handleCreateEndpoint(w http.ResponseWriter, r *http.Request) {
	uri := buildURI(r)
	var spec WebRtcEndpointSpec
	if err := api.DecodeAndValidate(r.Body, &spec); err != nil {
		badRequest(w, uri, err)
		return
	}
	roomID := id.RoomID(chi.URLParam(r, "room_id"))
	memberID := id.MemberID(chi.URLParam(r, "member_id"))
	endpointID := id.EndpointID(chi.URLParam(r, "endpoint_id"))
	if err := t.service.CreateEndpoint(r.Context(), roomID, memberID, endpointID, spec); err != nil {
		writeErrResponse(w, FromError(err, uri))
		return
	}
	api.WriteJSON(w, http.StatusCreated, struct{}{})
}

func (t *Transport) handleApply(w http.ResponseWriter, r *http.Request) {
	uri := buildURI(r)
	var spec RoomSpec
	if err := api.DecodeAndValidate(r.Body, &spec); err != nil {
		badRequest(w, uri, err)
		return
	}
	if err := t.service.Apply(r.Context(), uri, spec); err != nil {
		writeErrResponse(w, FromError(err, uri))
		return
	}
	api.WriteJSON(w, http.StatusOK, struct{}{})
}

// handleDelete deletes the path's own URI, plus any additional ids given
// in the request body — the batch shape §5 describes as `Delete(ids[])`.
// All ids, including the path one, must share a RoomID.
func (t *Transport) handleDelete(w http.ResponseWriter, r *http.Request) {
	uri := buildURI(r)
	ids := []string{uri}

	if r.ContentLength > 0 {
		var body struct {
			IDs []string `json:"ids"`
		}
		if err := api.DecodeAndValidate(r.Body, &body); err != nil {
			badRequest(w, uri, err)
			return
		}
		ids = append(ids, body.IDs...)
	}

	if err := t.service.Delete(r.Context(), ids); err != nil {
		writeErrResponse(w, FromError(err, uri))
		return
	}
	api.WriteJSON(w, http.StatusOK, struct{}{})
}

// handleGet serializes the live room/member/endpoint state named by the
// request path back into its spec DTO shape, the reverse of what
// handleCreate* and handleApply build from.
func (t *Transport) handleGet(w http.ResponseWriter, r *http.Request) {
	uri := buildURI(r)
	result, err := t.service.Get(r.Context(), uri)
	if err != nil {
		writeErrResponse(w, FromError(err, uri))
		return
	}
	api.WriteJSON(w, http.StatusOK, result)
}
