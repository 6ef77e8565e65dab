// screenpilot — policy-enforced autonomous device control.
package main

import "screenpilot/internal/cli"

func main() {
	cli.Execute()
}
