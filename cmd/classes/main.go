package main

import (
	"gymbook/internal/classes/handler"
	"gymbook/internal/classes/repository"
	"gymbook/internal/classes/service"
	"gymbook/internal/classes/validator"
	memberrepo "gymbook/internal/members/repository"
	"gymbook/pkg/app"
	"gymbook/pkg/config"
)

const ServiceName = "classes"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Classes service")
	classService := initServices(cfg)
	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(handler.NewClassHandler(classService, cfg, cfg.Log))
	serverApp.Run()
}

func initServices(cfg *config.Config) service.ClassService {
	classValidator := validator.NewClassValidator(cfg.Log)
	classRepo := repository.NewMongoClassRepository(cfg)
	memberRepo := memberrepo.NewMongoMemberRepository(cfg)
	classService := service.NewClassService(
		classRepo,
		memberRepo,
		classValidator,
		cfg,
	)

	cfg.Log.Info("Classes service initialized", "database", cfg.MongoDatabaseName)
	return classService
}
