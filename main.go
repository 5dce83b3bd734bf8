// Copyright © 2019 Andrei Gubarev <agubarev@protonmail.com>

package main

import "github.com/agubarev/aegis/cmd"

func main() {
	cmd.Execute()
}
