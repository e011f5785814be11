package router

import (
	userapp "github.com/usersvc/users-api/internal/application"
	"github.com/usersvc/users-api/internal/container"
	"github.com/usersvc/users-api/internal/infrastructure/gcs"
	pginfra "github.com/usersvc/users-api/internal/infrastructure/postgres"
	handlers "github.com/usersvc/users-api/internal/interface/http"
	"github.com/usersvc/users-api/internal/router/modules"
)

func buildUserModule() *modules.UserModule {
	cfg := container.GetConfig()

	store := pginfra.NewStore(container.GetPGPool())

	var avatars userapp.AvatarStorage
	if container.GetGCS() != nil && cfg.GCSBucket != "" {
		avatars = gcs.NewAvatarStorage(container.GetGCS(), cfg.GCSBucket)
	}

	svc := userapp.NewService(store, avatars, container.GetLogger())
	svc.Redis = container.GetRedis()
	svc.CacheTTL = cfg.UserCacheTTL
	svc.ES = container.GetES()
	svc.ESUsersIndex = cfg.ESUsersIndex
	svc.Mail = container.GetRabbitPub()
	svc.AppName = cfg.AppName

	handler := handlers.NewUserHandler(svc, container.GetLogger())
	return modules.NewUserModule(handler)
}

// InitModules initializes all application modules and registers them with the
// router registry. Called once during application startup.
func InitModules(r *Registry) {
	r.Add(buildUserModule())
}
