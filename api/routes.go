package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	r := s.router

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/schema", s.handleSchema)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Post("/validate", s.handleValidate)
	r.Get("/search", s.handleSearch)
	r.Get("/ws/search", s.handleSearchSocket)

	r.Post("/webhook", s.handleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(requireToken(s.admin, s.logger))
		r.Post("/index", s.handleIndex)
		r.Post("/admin/replay", s.handleReplay)
	})
}
