package main

import "github.com/bryanchriswhite/FrameScope/cmd/framescope/commands"

func main() {
	commands.Execute()
}
