package geocode

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

// okResponse writes a matched provider response with lat/lng taken from the
// handler's arguments.
func okResponse(w http.ResponseWriter, lat, lng float64) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"OK","results":[{"geometry":{"location":{"lat":%f,"lng":%f}}}]}`, lat, lng)
}

// countingHandler wraps a handler and counts how many requests reached it.
type countingHandler struct {
	calls   atomic.Int64
	handler http.HandlerFunc
}

func (c *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.calls.Add(1)
	c.handler(w, r)
}
