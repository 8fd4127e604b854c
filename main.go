package main

import (
	"github.com/reactive-kv/rkv/cmd"
)

func main() {
	cmd.Execute()
}
