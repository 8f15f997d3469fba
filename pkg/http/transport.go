package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	fluxerr "github.com/fluxcd/bluegreen/pkg/errors"
)

// NewAPIRouter returns the routes of the approval API, without
// handlers; the server attaches handlers by name, and the client uses
// the same router to make URLs.
func NewAPIRouter() *mux.Router {
	r := mux.NewRouter()

	r.NewRoute().Name(Ping).Methods("GET").Path("/v1/ping")
	r.NewRoute().Name(Version).Methods("GET").Path("/v1/version")
	r.NewRoute().Name(Pending).Methods("GET").Path("/v1/pending")
	r.NewRoute().Name(Approve).Methods("POST").Path("/v1/approve")
	r.NewRoute().Name(Reject).Methods("POST").Path("/v1/reject")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusNotFound, MakeAPINotFound(r.URL.Path))
	})
	return r
}

func MakeURL(endpoint string, router *mux.Router, routeName string, urlParams ...string) (*url.URL, error) {
	if len(urlParams)%2 != 0 {
		panic("urlParams must be even!")
	}

	endpointURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing endpoint %s", endpoint)
	}
	route := router.Get(routeName)
	if route == nil {
		return nil, errors.New("no route with name " + routeName)
	}
	routeURL, err := route.URLPath()
	if err != nil {
		return nil, errors.Wrapf(err, "retrieving route path %s", routeName)
	}

	v := url.Values{}
	for i := 0; i < len(urlParams); i += 2 {
		v.Add(urlParams[i], urlParams[i+1])
	}

	endpointURL.Path = path.Join(endpointURL.Path, routeURL.Path)
	endpointURL.RawQuery = v.Encode()
	return endpointURL, nil
}

// WriteError responds with err as JSON to clients that ask for it
// (bluegreen approve/reject do), with its help text to clients that
// ask for text, and with just the message otherwise, e.g., to curl.
func WriteError(w http.ResponseWriter, r *http.Request, code int, err error) {
	if len(r.Header.Get("Accept")) > 0 {
		switch negotiateContentType(r, []string{"application/json", "text/plain"}) {
		case "application/json":
			body, encodeErr := json.Marshal(err)
			if encodeErr != nil {
				writeText(w, http.StatusInternalServerError, fmt.Sprintf("Error encoding error response: %s\n\nOriginal error: %s", encodeErr, err))
				return
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(code)
			w.Write(body)
			return
		case "text/plain":
			if e, ok := err.(*fluxerr.Error); ok && e.Help != "" {
				writeText(w, code, e.Help)
				return
			}
		}
	}
	writeText(w, code, err.Error())
}

func writeText(w http.ResponseWriter, code int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	fmt.Fprint(w, text)
}

func JSONResponse(w http.ResponseWriter, r *http.Request, result interface{}) {
	body, err := json.Marshal(result)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// ErrorResponse picks the status code from the type of error.
func ErrorResponse(w http.ResponseWriter, r *http.Request, apiError error) {
	outErr, ok := errors.Cause(apiError).(*fluxerr.Error)
	if !ok {
		outErr = fluxerr.CoverAllError(apiError)
	}
	code := http.StatusInternalServerError
	switch outErr.Type {
	case fluxerr.Missing:
		code = http.StatusNotFound
	case fluxerr.User:
		code = http.StatusUnprocessableEntity
	}
	if outErr == ErrorUnauthorized {
		code = http.StatusUnauthorized
	}
	WriteError(w, r, code, outErr)
}
