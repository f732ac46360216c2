package main

import "arxiv-translator/internal/cli"

func main() {
	cli.Execute()
}
