package main

import (
	"github.com/orderlabs/order-svc/internal/app"
	"github.com/orderlabs/order-svc/internal/config"
)

func main() {
	config.MustInit()
	app.MustNewApp().Run()
}
