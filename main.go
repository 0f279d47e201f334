package main

import "github.com/nextlevelbuilder/hedgewatch/cmd"

func main() {
	cmd.Execute()
}
