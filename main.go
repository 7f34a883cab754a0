package main

import "github.com/Layr-Labs/fundtracer/cmd"

func main() {
	cmd.Execute()
}
