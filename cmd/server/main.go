package main

import (
	"log"
	"os"

	"github.com/samuelogboye/cv-forge-api/app"
)

func main() {
	app.MustInitDB()
	app.MustInitRedis()
	app.InitStripe()
	app.MustInitPlans()

	sweep, err := app.StartReconcileSweep(os.Getenv("RECONCILE_SWEEP_SCHEDULE"))
	if err != nil {
		log.Fatalf("failed to start reconcile sweep: %v", err)
	}
	defer sweep.Stop()

	router, err := app.NewRouter()
	if err != nil {
		log.Fatalf("failed to initialize router: %v", err)
	}
	router.Run("0.0.0.0:8080")
}
