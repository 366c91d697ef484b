// Command actiongate decides allow, deny or hold for irreversible agent actions.
package main

import "github.com/ppiankov/actiongate/internal/cli"

func main() {
	cli.Execute()
}
