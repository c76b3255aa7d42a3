package main

import "github.com/charlesms1246/home-iot-guard/cmd"

func main() {
	cmd.Execute()
}
