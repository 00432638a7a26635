package main

import (
	"visitcounter/cmd/visitcounter/commands"
	"visitcounter/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
