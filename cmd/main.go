package main

import (
	"github.com/counter-agent/cmd/agent"
)

func main() {
	agent.Execute()
}
