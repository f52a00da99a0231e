package main

import "github.com/bananya-ml/arxiv-feed/cmd"

func main() {
	cmd.Execute()
}
