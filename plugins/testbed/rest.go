// Copyright (c) 2018 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package testbed

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/render"
)

const (
	// prefix used for REST urls of the testbed.
	urlPrefix = "/mptestbed/v1/"

	// PlanURL returns the plan of the session.
	PlanURL = urlPrefix + "plan"
	// HostURL returns the routing policy of one host.
	HostURL = urlPrefix + "hosts/{host}"
	// MetricsURL exposes prometheus metrics.
	MetricsURL = "/metrics"
)

// errorString wraps string representation of an error that, unlike the original
// error, can be marshalled.
type errorString struct {
	Error string
}

// HTTPHandlers registers REST handlers, it is the API of the cn-infra REST plugin.
type HTTPHandlers interface {
	RegisterHTTPHandler(path string, provider func(formatter *render.Render) http.HandlerFunc,
		methods ...string) *mux.Route
}

// RESTServer serves the plan of the current session.
type RESTServer struct {
	Log logging.Logger

	router    *mux.Router
	formatter *render.Render
	server    *http.Server

	mutex   sync.RWMutex
	session *Session
}

// NewRESTServer creates a server with handlers registered. Metrics from
// the gatherer are exposed if it is not nil.
func NewRESTServer(listen string, gatherer prometheus.Gatherer, log logging.Logger) *RESTServer {
	s := &RESTServer{
		Log:       log,
		router:    mux.NewRouter(),
		formatter: render.New(render.Options{IndentJSON: true}),
	}
	s.server = &http.Server{Addr: listen, Handler: s.router}
	s.registerHandlers(s, gatherer)
	return s
}

// RegisterHTTPHandler adds a handler to the router.
func (s *RESTServer) RegisterHTTPHandler(path string, provider func(formatter *render.Render) http.HandlerFunc,
	methods ...string) *mux.Route {
	return s.router.HandleFunc(path, provider(s.formatter)).Methods(methods...)
}

// SetSession changes the session served, nil for none.
func (s *RESTServer) SetSession(session *Session) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.session = session
}

// Handler returns the router, used by tests.
func (s *RESTServer) Handler() http.Handler {
	return s.router
}

// Start listens in background.
func (s *RESTServer) Start() {
	go func() {
		s.Log.Infof("Serving REST API on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.Log.Errorf("REST server failed: %v", err)
		}
	}()
}

// Close stops the server.
func (s *RESTServer) Close(ctx context.Context) error {
	return errors.Wrap(s.server.Shutdown(ctx), "failed to stop REST server")
}

func (s *RESTServer) registerHandlers(handlers HTTPHandlers, gatherer prometheus.Gatherer) {
	handlers.RegisterHTTPHandler(PlanURL, s.planGetHandler, "GET")
	handlers.RegisterHTTPHandler(HostURL, s.hostGetHandler, "GET")
	if gatherer != nil {
		s.router.Handle(MetricsURL, promhttp.HandlerFor(gatherer,
			promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError, ErrorLog: s.Log}))
	}
	s.Log.Debugf("REST handlers registered: GET %s, GET %s", PlanURL, HostURL)
}

func (s *RESTServer) planGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		s.mutex.RLock()
		defer s.mutex.RUnlock()

		if s.session == nil {
			formatter.JSON(w, http.StatusNotFound, errorString{"no session"})
			return
		}
		formatter.JSON(w, http.StatusOK, s.session.Plan)
	}
}

func (s *RESTServer) hostGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		s.mutex.RLock()
		defer s.mutex.RUnlock()

		host := mux.Vars(req)["host"]
		if s.session == nil {
			formatter.JSON(w, http.StatusNotFound, errorString{"no session"})
			return
		}
		policy := s.session.Plan.Host(host)
		if policy == nil {
			formatter.JSON(w, http.StatusNotFound, errorString{"no policy for host " + host})
			return
		}
		formatter.JSON(w, http.StatusOK, policy)
	}
}
