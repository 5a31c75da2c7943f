// Package debughttp mounts the runtime profiler on an operator-only mux.
package debughttp

import (
	"net/http"
	httppprof "net/http/pprof"
)

// Register adds the /debug/pprof/ handlers to mux. It must only be used on a
// listener that is not reachable from the public internet.
func Register(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", httppprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", httppprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", httppprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", httppprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", httppprof.Trace)
}
