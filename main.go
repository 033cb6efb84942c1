package main

import "github.com/samsaffron/llm-gateway/cmd"

func main() {
	cmd.Execute()
}
