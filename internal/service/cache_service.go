package service

import (
	"log/slog"

	"github.com/pbxgate/pbxgate/internal/domain/cache"
	"github.com/pbxgate/pbxgate/internal/domain/session"
	"github.com/pbxgate/pbxgate/internal/port/outbound"
)

// CacheService administers the artifact cache.
type CacheService struct {
	artifacts outbound.ArtifactCache
	sessions  session.Store
	logger    *slog.Logger
}

// NewCacheService creates a new CacheService.
func NewCacheService(artifacts outbound.ArtifactCache, sessions session.Store, logger *slog.Logger) *CacheService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheService{artifacts: artifacts, sessions: sessions, logger: logger}
}

// ClearAll drops every cached artifact and returns how many were removed.
func (s *CacheService) ClearAll() int {
	n := s.artifacts.Clear()
	s.logger.Info("cache cleared", "removed", n)
	return n
}

// ClearByPattern drops every artifact whose key contains pattern.
func (s *CacheService) ClearByPattern(pattern string) int {
	n := s.artifacts.DeleteMatching(pattern)
	s.logger.Info("cache cleared by pattern", "pattern", pattern, "removed", n)
	return n
}

// Status summarizes the cache and the session store.
func (s *CacheService) Status() cache.Status {
	st := s.artifacts.Status()
	st.TotalSessions = s.sessions.Len()
	return st
}
