package pilot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/ariatree/kit"
)

// NewRouter builds the HTTP API router.
func (s *Service) NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	s.RegisterHTTP(r)
	return r
}

// RegisterHTTP mounts the pilot API on a chi router. Every route runs
// through the same instrumentation chain as the MCP tools, so both
// transports land in the tool event log.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Route("/api/tabs", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			s.respond(w, req, "pilot_list_tabs", "", nil, func(ctx context.Context) (any, error) {
				return s.ListTabs(ctx), nil
			})
		})

		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				URL string `json:"url"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, 400, err)
				return
			}
			s.respondCode(w, req, 201, "pilot_open_tab", "", body, func(ctx context.Context) (any, error) {
				return s.OpenTab(ctx, body.URL)
			})
		})

		r.Route("/{tabID}", func(r chi.Router) {
			r.Delete("/", func(w http.ResponseWriter, req *http.Request) {
				tabID := chi.URLParam(req, "tabID")
				s.respond(w, req, "pilot_close_tab", tabID, nil, func(ctx context.Context) (any, error) {
					if err := s.CloseTab(ctx, tabID); err != nil {
						return nil, err
					}
					return map[string]string{"status": "closed"}, nil
				})
			})

			r.Get("/snapshot", func(w http.ResponseWriter, req *http.Request) {
				tabID := chi.URLParam(req, "tabID")
				s.respond(w, req, "pilot_snapshot", tabID, nil, func(ctx context.Context) (any, error) {
					return s.Snapshot(ctx, tabID)
				})
			})

			r.Get("/diff", func(w http.ResponseWriter, req *http.Request) {
				tabID := chi.URLParam(req, "tabID")
				s.respond(w, req, "pilot_diff", tabID, nil, func(ctx context.Context) (any, error) {
					changed, err := s.Diff(ctx, tabID)
					if err != nil {
						return nil, err
					}
					return map[string]bool{"changed": changed}, nil
				})
			})

			r.Get("/resolve/{index}", func(w http.ResponseWriter, req *http.Request) {
				index, err := strconv.Atoi(chi.URLParam(req, "index"))
				if err != nil {
					writeError(w, 400, err)
					return
				}
				tabID := chi.URLParam(req, "tabID")
				s.respond(w, req, "pilot_resolve", tabID, map[string]int{"index": index}, func(ctx context.Context) (any, error) {
					sel, err := s.Resolve(tabID, index)
					if err != nil {
						return nil, err
					}
					return map[string]string{"selector": sel}, nil
				})
			})

			r.Post("/navigate", func(w http.ResponseWriter, req *http.Request) {
				var body struct {
					URL string `json:"url"`
				}
				if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
					writeError(w, 400, err)
					return
				}
				tabID := chi.URLParam(req, "tabID")
				s.respond(w, req, "pilot_navigate", tabID, body, func(ctx context.Context) (any, error) {
					if err := s.Navigate(ctx, tabID, body.URL); err != nil {
						return nil, err
					}
					return map[string]string{"status": "ok"}, nil
				})
			})

			r.Post("/actions", func(w http.ResponseWriter, req *http.Request) {
				s.handleAction(w, req)
			})

			r.Get("/markdown", func(w http.ResponseWriter, req *http.Request) {
				tabID := chi.URLParam(req, "tabID")
				mainOnly := req.URL.Query().Get("main_only") == "true"
				s.respond(w, req, "pilot_markdown", tabID, map[string]bool{"main_only": mainOnly}, func(ctx context.Context) (any, error) {
					md, err := s.Markdown(ctx, tabID, mainOnly)
					if err != nil {
						return nil, err
					}
					return map[string]string{"markdown": md}, nil
				})
			})

			r.Get("/links", func(w http.ResponseWriter, req *http.Request) {
				tabID := chi.URLParam(req, "tabID")
				s.respond(w, req, "pilot_links", tabID, nil, func(ctx context.Context) (any, error) {
					return s.PageLinks(ctx, tabID)
				})
			})

			r.Get("/extract", func(w http.ResponseWriter, req *http.Request) {
				selector := req.URL.Query().Get("selector")
				if selector == "" {
					writeError(w, 400, errors.New("missing selector parameter"))
					return
				}
				tabID := chi.URLParam(req, "tabID")
				s.respond(w, req, "pilot_extract", tabID, map[string]string{"selector": selector}, func(ctx context.Context) (any, error) {
					texts, err := s.ExtractText(ctx, tabID, selector)
					if err != nil {
						return nil, err
					}
					return map[string]any{"texts": texts}, nil
				})
			})
		})
	})
}

// actionRequest is the generic body for POST /api/tabs/{tabID}/actions.
type actionRequest struct {
	Action string  `json:"action"` // click | type | hover | select | press_key | scroll | back | forward
	Index  int     `json:"index"`
	Text   string  `json:"text"`
	Option string  `json:"option"`
	Key    string  `json:"key"`
	DX     float64 `json:"dx"`
	DY     float64 `json:"dy"`
}

func (s *Service) handleAction(w http.ResponseWriter, req *http.Request) {
	tabID := chi.URLParam(req, "tabID")
	var body actionRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, 400, err)
		return
	}

	var op func(context.Context) error
	switch body.Action {
	case "click":
		op = func(ctx context.Context) error { return s.Click(ctx, tabID, body.Index) }
	case "type":
		op = func(ctx context.Context) error { return s.Type(ctx, tabID, body.Index, body.Text) }
	case "hover":
		op = func(ctx context.Context) error { return s.Hover(ctx, tabID, body.Index) }
	case "select":
		op = func(ctx context.Context) error { return s.SelectOption(ctx, tabID, body.Index, body.Option) }
	case "press_key":
		op = func(ctx context.Context) error { return s.PressKey(ctx, tabID, body.Key) }
	case "scroll":
		op = func(ctx context.Context) error { return s.Scroll(ctx, tabID, body.DX, body.DY) }
	case "back":
		op = func(ctx context.Context) error { return s.Back(ctx, tabID) }
	case "forward":
		op = func(ctx context.Context) error { return s.Forward(ctx, tabID) }
	default:
		writeError(w, 400, errors.New("unknown action: "+body.Action))
		return
	}

	s.respond(w, req, "pilot_"+body.Action, tabID, body, func(ctx context.Context) (any, error) {
		if err := op(ctx); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok"}, nil
	})
}

// respond runs op through the tool instrumentation and writes the outcome.
func (s *Service) respond(w http.ResponseWriter, req *http.Request, tool, tabID string, params any, op func(context.Context) (any, error)) {
	s.respondCode(w, req, 200, tool, tabID, params, op)
}

func (s *Service) respondCode(w http.ResponseWriter, req *http.Request, okCode int, tool, tabID string, params any, op func(context.Context) (any, error)) {
	ctx := httpCtx(req)
	if tabID != "" {
		ctx = kit.WithTabID(ctx, tabID)
	}
	endpoint := kit.Chain(s.instrument(tool))(func(ctx context.Context, _ any) (any, error) {
		return op(ctx)
	})
	resp, err := endpoint(ctx, params)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, okCode, resp)
}

// httpCtx tags the request context with transport metadata for the tool log.
// Callers may pass an X-Trace-Id header to correlate requests across systems.
func httpCtx(req *http.Request) context.Context {
	ctx := kit.WithTransport(req.Context(), "http")
	if id := middleware.GetReqID(req.Context()); id != "" {
		ctx = kit.WithRequestID(ctx, id)
	}
	if tid := req.Header.Get("X-Trace-Id"); tid != "" {
		ctx = kit.WithTraceID(ctx, tid)
	}
	if req.RemoteAddr != "" {
		ctx = kit.WithRemoteAddr(ctx, req.RemoteAddr)
	}
	return ctx
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrTabNotFound):
		return 404
	case errors.Is(err, ErrNoSnapshot), errors.Is(err, ErrUnknownIndex):
		return 409
	default:
		return 500
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
