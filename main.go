package main

import "github.com/surge-downloader/sdm/cmd"

func main() {
	cmd.Execute()
}
