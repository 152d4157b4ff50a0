package controller

import (
	"context"

	"aidimport/internal/cache"
	"aidimport/internal/database"
	"aidimport/internal/rabbitmq"
)

// ServerController reports liveness of the service's backing systems
// so the health endpoint can distinguish a degraded instance from a
// dead one.
type ServerController interface {
	DBHealth() error
	CacheHealth(context.Context) error
	RabbitHealth() error
	Online() string
}

type serverController struct {
	db     database.Database
	cache  cache.Cache
	rabbit rabbitmq.Client
}

// NewServer creates a health controller over the given backends.
func NewServer(db database.Database, cache cache.Cache, rabbit rabbitmq.Client) ServerController {
	return &serverController{
		db:     db,
		cache:  cache,
		rabbit: rabbit,
	}
}

func (sc *serverController) Online() string {
	return "Online"
}

func (sc *serverController) DBHealth() error {
	return sc.db.Health()
}

func (sc *serverController) CacheHealth(ctx context.Context) error {
	return sc.cache.Ping(ctx)
}

func (sc *serverController) RabbitHealth() error {
	return sc.rabbit.Health()
}
