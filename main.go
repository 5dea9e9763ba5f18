package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/jobseekr/realtime-api/api/handlers"

	"go.uber.org/zap"

	"github.com/jobseekr/realtime-api/config"
)

func main() {
	a := handlers.App{}
	a.Config = *config.New()

	if err := a.Initialize(); err != nil { //initialize database, hub and router
		log.Fatal(err)
	}

	zap.S().Infow("jobseekr-realtime-api is up and running",
		"port", a.Config.Port,
		"url", a.Config.BaseURL,
	)
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%v", a.Config.Port), a.Router))
}
