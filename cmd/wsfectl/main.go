package main

import "github.com/jhoicas/wsfe-api/cmd/wsfectl/cmd"

func main() {
	cmd.Execute()
}
