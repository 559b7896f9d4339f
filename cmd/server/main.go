package main

import "github.com/eleven-am/tts-stream/internal/bootstrap"

func main() {
	bootstrap.Run()
}
