package http

import (
	"net/http"
	"sort"

	"github.com/golang/gddo/httputil/header"
)

// negotiateContentType picks which of the offered content types to
// respond with. Without an Accept header, the first offer wins. With
// one, the acceptable offers are ranked by quality, then by their
// order in offers; if nothing offered is acceptable, "" is returned.
func negotiateContentType(r *http.Request, offers []string) string {
	specs := header.ParseAccept(r.Header, "Accept")
	if len(specs) == 0 {
		return offers[0]
	}

	var acceptable []header.AcceptSpec
	for _, spec := range specs {
		if rank(offers, spec.Value) < len(offers) {
			acceptable = append(acceptable, spec)
		}
	}
	if len(acceptable) == 0 {
		return ""
	}
	sort.SliceStable(acceptable, func(i, j int) bool {
		if acceptable[i].Q != acceptable[j].Q {
			return acceptable[i].Q > acceptable[j].Q
		}
		return rank(offers, acceptable[i].Value) < rank(offers, acceptable[j].Value)
	})
	return acceptable[0].Value
}

// rank is the position of s in offers, or len(offers) when absent, so
// that absent values sort last.
func rank(offers []string, s string) int {
	for i, o := range offers {
		if o == s {
			return i
		}
	}
	return len(offers)
}
