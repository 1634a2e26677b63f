package main

import "cryptobot/internal/cli"

func main() {
	cli.Execute()
}
