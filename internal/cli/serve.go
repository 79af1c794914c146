package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	corralerrors "github.com/matzehuels/corral/pkg/errors"
	"github.com/matzehuels/corral/pkg/frame"
	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/pipeline"
)

// serveCommand creates the serve command exposing stored documents and
// their derived state as a read-only JSON API. Mutation happens in the
// editor; the API mirrors the observables (group list, frame list,
// disabled node set, definition catalog).
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve documents and derived state over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func (c *CLI) runServe(cmd *cobra.Command, addr string) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	runner, err := c.newRunner(cfg, false)
	if err != nil {
		return err
	}
	defer runner.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           newServeHandler(runner, cfg.FrameOptions()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Infof("Serving on %s", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// newServeHandler builds the chi router over one pipeline runner. Every
// request executes the pipeline for the named document; the artifact cache
// keeps repeated renders cheap.
func newServeHandler(runner *pipeline.Runner, geometry frame.Options) http.Handler {
	s := &server{runner: runner, geometry: geometry}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/api/documents", s.listDocuments)
	r.Route("/api/documents/{name}", func(r chi.Router) {
		r.Get("/", s.getDocument)
		r.Get("/groups", s.getGroups)
		r.Get("/frames", s.getFrames)
		r.Get("/disabled", s.getDisabled)
		r.Get("/definitions", s.getDefinitions)
		r.Get("/render", s.getRender)
	})
	return r
}

type server struct {
	runner   *pipeline.Runner
	geometry frame.Options
}

// groupJSON is the wire shape of one group in the hierarchy.
type groupJSON struct {
	ID        string   `json:"id"`
	ParentID  string   `json:"parentId,omitempty"`
	Name      string   `json:"name"`
	NodeIDs   []string `json:"nodeIds"`
	Disabled  bool     `json:"disabled"`
	Minimized bool     `json:"minimized"`
	Effective bool     `json:"effectiveDisabled"`
}

// frameJSON is the wire shape of one computed frame.
type frameJSON struct {
	GroupID   string  `json:"groupId,omitempty"`
	LoopID    string  `json:"loopId,omitempty"`
	Name      string  `json:"name"`
	Left      float64 `json:"left"`
	Top       float64 `json:"top"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Depth     int     `json:"depth"`
	Disabled  bool    `json:"effectiveDisabled"`
	Minimized bool    `json:"minimized"`
}

func (s *server) listDocuments(w http.ResponseWriter, r *http.Request) {
	names, err := s.runner.Documents.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": names})
}

func (s *server) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.runner.Documents.Load(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *server) getGroups(w http.ResponseWriter, r *http.Request) {
	result, err := s.execute(r)
	if err != nil {
		writeError(w, err)
		return
	}
	store := result.State.Store

	groups := make([]groupJSON, 0, store.Len())
	for _, g := range store.Groups() {
		groups = append(groups, groupJSON{
			ID:        string(g.ID),
			ParentID:  string(g.ParentID),
			Name:      g.Name,
			NodeIDs:   nodeIDStrings(g),
			Disabled:  g.Disabled,
			Minimized: g.Minimized,
			Effective: store.EffectiveDisabled(g.ID),
		})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (s *server) getFrames(w http.ResponseWriter, r *http.Request) {
	result, err := s.execute(r)
	if err != nil {
		writeError(w, err)
		return
	}

	frames := make([]frameJSON, 0, len(result.Frames))
	for _, f := range result.Frames {
		frames = append(frames, frameJSON{
			GroupID:   string(f.GroupID),
			LoopID:    f.LoopID,
			Name:      f.Name,
			Left:      f.Bounds.Left,
			Top:       f.Bounds.Top,
			Width:     f.Bounds.Width,
			Height:    f.Bounds.Height,
			Depth:     f.Depth,
			Disabled:  f.EffectiveDisabled,
			Minimized: f.Minimized,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"frames": frames})
}

func (s *server) getDisabled(w http.ResponseWriter, r *http.Request) {
	result, err := s.execute(r)
	if err != nil {
		writeError(w, err)
		return
	}

	ids := make([]string, 0)
	for id := range result.State.Store.DisabledNodeIDs() {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	writeJSON(w, http.StatusOK, map[string]any{"disabledNodeIds": ids})
}

func (s *server) getDefinitions(w http.ResponseWriter, r *http.Request) {
	result, err := s.execute(r)
	if err != nil {
		writeError(w, err)
		return
	}
	defs, err := result.State.Catalog.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"definitions": defs})
}

func (s *server) getRender(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = pipeline.FormatSVG
	}
	if err := pipeline.ValidateFormat(format); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.runner.Execute(r.Context(), pipeline.Options{
		Document: chi.URLParam(r, "name"),
		Formats:  []string{format},
		Detailed: r.URL.Query().Get("detailed") == "true",
		Refresh:  r.URL.Query().Get("refresh") == "true",
		Geometry: s.geometry,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Artifacts[format])
}

// execute runs the pipeline for the document named in the route, without
// rendering.
func (s *server) execute(r *http.Request) (*pipeline.Result, error) {
	return s.runner.Execute(r.Context(), pipeline.Options{
		Document: chi.URLParam(r, "name"),
		Geometry: s.geometry,
	})
}

func nodeIDStrings(g *group.Group) []string {
	out := make([]string, 0, len(g.NodeIDs))
	for _, id := range g.Members() {
		out = append(out, string(id))
	}
	return out
}

func contentType(format string) string {
	switch format {
	case pipeline.FormatSVG:
		return "image/svg+xml"
	case pipeline.FormatPNG:
		return "image/png"
	default:
		return "text/vnd.graphviz"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps structured error codes onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch corralerrors.GetCode(err) {
	case corralerrors.ErrCodeDocumentNotFound, corralerrors.ErrCodeGroupNotFound,
		corralerrors.ErrCodeDefinitionNotFound, corralerrors.ErrCodeNodeNotFound:
		status = http.StatusNotFound
	case corralerrors.ErrCodeInvalidDocument, corralerrors.ErrCodeInvalidConfig,
		corralerrors.ErrCodeInvalidName, corralerrors.ErrCodeInvalidSelection:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{
		"error": corralerrors.UserMessage(err),
		"code":  string(corralerrors.GetCode(err)),
	})
}
