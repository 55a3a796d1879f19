package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/curlaas-go/internal/components/fetch"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/appctx"
)

// maxBodyBytes bounds the JSON request body.
const maxBodyBytes = 64 << 10

// Fetcher is the part of *fetch.Fetcher the handler needs.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, method string) (*fetch.Result, error)
}

// FetchRequest is the body of POST /api/HTTP/{method}.
type FetchRequest struct {
	URL *string `json:"url"`
}

// FetchData is the success payload: the decomposed input URL plus the hop trail.
type FetchData struct {
	URL      fetch.DecomposedURL    `json:"url"`
	Response []fetch.ResponseRecord `json:"response"`
	Request  []fetch.RequestRecord  `json:"request"`
}

// FetchHandler serves POST /api/HTTP/{method}.
type FetchHandler struct {
	fetcher Fetcher
}

// NewFetchHandler creates the handler.
func NewFetchHandler(f Fetcher) *FetchHandler {
	return &FetchHandler{fetcher: f}
}

func (h *FetchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := appctx.GetLogger(r.Context())
	method := chi.URLParam(r, "method")

	var body FetchRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		WriteBadRequest(w, "request body must be a JSON object with a string \"url\" field")
		return
	}
	if body.URL == nil {
		WriteBadRequest(w, "missing \"url\" field")
		return
	}

	res, err := h.fetcher.Fetch(r.Context(), *body.URL, method)
	if err != nil {
		var fe *fetch.Error
		if !errors.As(err, &fe) {
			fe = &fetch.Error{Kind: fetch.KindOf(err), Detail: err.Error()}
		}
		log.Debug("fetch rejected", "error_id", string(fe.Kind))
		WriteError(w, http.StatusInternalServerError, string(fe.Kind), fe.Detail)
		return
	}

	// Fetch already parsed the URL, so Decompose cannot fail here.
	decomposed, _ := fetch.Decompose(*body.URL)
	WriteData(w, FetchData{
		URL:      decomposed,
		Response: res.Response,
		Request:  res.Request,
	})
}
