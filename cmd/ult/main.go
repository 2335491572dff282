package main

import (
	"github.com/ultiledger/go-ultidpos/cmd/ult/app"
)

func main() {
	app.Execute()
}
