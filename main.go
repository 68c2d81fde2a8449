package main

import "circles-backend/cmd"

func main() {
	cmd.Run()
}
