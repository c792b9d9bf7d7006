package main

import (
	"github.com/odvcencio/gitlite/pkg/config"
	"github.com/odvcencio/gitlite/pkg/repo"
)

func loadSettings() (*config.Settings, error) {
	return config.Load()
}

func fallbackIdentity(s *config.Settings) repo.Identity {
	return repo.Identity{Name: s.User.Name, Email: s.User.Email}
}
