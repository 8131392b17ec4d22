package main

import "github.com/mselser95/lmsr-amm/cmd"

func main() {
	cmd.Execute()
}
