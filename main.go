package main

import (
	"flag"
	"strings"

	"PPDirect/global/app"

	"go.uber.org/fx"
)

func main() {
	envFiles := flag.String("env", ".env", "comma separated .env files, missing files are ignored")
	flag.Parse()

	fx.New(
		app.Module(app.Params{EnvFiles: strings.Split(*envFiles, ",")}),
	).Run()
}
