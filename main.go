package main

import "github.com/steamfamilyzap/kgbot/cmd"

func main() {
	cmd.Execute()
}
