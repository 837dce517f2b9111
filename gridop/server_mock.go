package gridop

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/microgrid/config"
	"github.com/kilianp07/microgrid/infra/logger"
)

// ServerMock exposes HTTP endpoints for injecting operator signals locally.
type ServerMock struct {
	addr   string
	sub    Submitter
	log    logger.Logger
	srv    *http.Server
	total  *prometheus.CounterVec
	failed prometheus.Counter
}

// NewServerMock creates a new mock server using the default Prometheus
// registerer.
func NewServerMock(cfg config.GridMockConfig, s Submitter) *ServerMock {
	return NewServerMockWithRegistry(cfg, s, prometheus.DefaultRegisterer)
}

// NewServerMockWithRegistry creates a new mock server and registers metrics on
// the provided registerer. If reg is nil the default registerer is used.
func NewServerMockWithRegistry(cfg config.GridMockConfig, s Submitter, reg prometheus.Registerer) *ServerMock {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	logger := logger.New("gridop-server-mock")

	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grid_signals_total",
		Help: "Total received grid-operator signals",
	}, []string{"signal_type"})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grid_signals_failed",
		Help: "Failed grid-operator signals",
	})

	if err := reg.Register(total); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if exist, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				total = exist
			} else {
				logger.Errorf("existing collector for grid_signals_total has wrong type %T", are.ExistingCollector)
			}
		}
	}
	if err := reg.Register(failed); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if exist, ok := are.ExistingCollector.(prometheus.Counter); ok {
				failed = exist
			} else {
				logger.Errorf("existing collector for grid_signals_failed has wrong type %T", are.ExistingCollector)
			}
		}
	}

	return &ServerMock{
		addr:   cfg.Address,
		sub:    s,
		log:    logger,
		total:  total,
		failed: failed,
	}
}

func (s *ServerMock) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/grid/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("pong")); err != nil {
			s.log.Errorf("write pong: %v", err)
		}
	})
	mux.HandleFunc("/grid/signal", s.handleSignal)
	return mux
}

func (s *ServerMock) handleSignal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var sig Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		s.failed.Inc()
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := sig.Validate(); err != nil {
		s.failed.Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	category, spec, err := sig.ToProposal(time.Now())
	if err != nil {
		s.failed.Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.sub.SubmitProposal(category, spec); err != nil {
		s.failed.Inc()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.total.WithLabelValues(sig.SignalType).Inc()
	s.log.Infof("applied %s signal on the %s pool", sig.SignalType, sig.Category)
	w.WriteHeader(http.StatusOK)
}

// Addr returns the listening address once Start has been called.
func (s *ServerMock) Addr() string { return s.addr }

// Start runs the HTTP server until the context is canceled.
func (s *ServerMock) Start(ctx context.Context) error {
	mux := s.routes()
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr().String()
	s.srv = &http.Server{Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("shutdown server: %v", err)
		}
		cancel()
	}()
	s.log.Infof("grid-operator mock server listening on %s", s.addr)
	if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
